//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the Gherkin suite against a running server. Start one
// with the default in-memory configuration before running:
//
//	go run ./cmd/server &
//	cd e2e && go test -tags e2e ./...
func TestFeatures(t *testing.T) {
	tc := NewTestContext()
	suite := godog.TestSuite{
		Name: "kycflow",
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.reset()
				return ctx, nil
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Tags:     os.Getenv("E2E_TAGS"),
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("e2e feature suite failed")
	}
}
