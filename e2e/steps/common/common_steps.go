package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	ResponseContains(field string) bool
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the KYC service is running$`, steps.serviceIsRunning)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^I POST to "([^"]*)" with body:$`, steps.postDocString)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) get(_ context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) postDocString(_ context.Context, path string, body *godog.DocString) error {
	return s.tc.POST(path, rawJSON(body.Content))
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.GetLastStatusCode(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(_ context.Context, field, want string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) responseShouldContain(_ context.Context, field string) error {
	if !s.tc.ResponseContains(field) {
		return fmt.Errorf("response has no %q: %s", field, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldEqual(ctx, "error", code)
}
