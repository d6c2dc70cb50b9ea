package kyc

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	Set(key, value string)
	Get(key string) string
}

const (
	pollInterval = 200 * time.Millisecond
	pollTimeout  = 15 * time.Second
)

// RegisterSteps registers KYC pipeline step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &kycSteps{tc: tc}

	ctx.Step(`^I open a KYC session for "([^"]*)" of type "([^"]*)" from "([^"]*)"$`, steps.openSession)
	ctx.Step(`^I report the document upload$`, steps.reportUpload)
	ctx.Step(`^I start the liveness check$`, steps.startLiveness)
	ctx.Step(`^I report the selfie upload$`, steps.reportSelfieUpload)
	ctx.Step(`^I request the session status$`, steps.requestStatus)
	ctx.Step(`^I request the extracted data$`, steps.requestExtractedData)
	ctx.Step(`^I request the result$`, steps.requestResult)

	ctx.Step(`^the extracted data should become available$`, steps.extractedDataAvailable)
	ctx.Step(`^the session status should become "([^"]*)"$`, steps.statusShouldBecome)
	ctx.Step(`^the session status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the extracted field "([^"]*)" should equal "([^"]*)"$`, steps.extractedFieldShouldEqual)
}

type kycSteps struct {
	tc TestContext
}

func (s *kycSteps) sessionPath(suffix string) string {
	return "/v1/kyc/" + s.tc.Get("sessionId") + suffix
}

func (s *kycSteps) openSession(_ context.Context, fileName, documentType, country string) error {
	err := s.tc.POST("/v1/kyc/sessions", map[string]string{
		"fileName":     fileName,
		"documentType": documentType,
		"countryCode":  country,
	})
	if err != nil {
		return err
	}
	if s.tc.GetLastStatusCode() != 201 {
		return fmt.Errorf("create session returned %d: %s", s.tc.GetLastStatusCode(), s.tc.GetLastResponseBody())
	}
	id, err := s.tc.GetResponseField("sessionId")
	if err != nil {
		return err
	}
	s.tc.Set("sessionId", fmt.Sprint(id))
	return nil
}

func (s *kycSteps) reportUpload(_ context.Context) error {
	return s.tc.POST(s.sessionPath("/document-uploaded"), nil)
}

func (s *kycSteps) startLiveness(_ context.Context) error {
	return s.tc.POST("/v1/kyc/liveness", map[string]string{"kycSessionId": s.tc.Get("sessionId")})
}

func (s *kycSteps) reportSelfieUpload(_ context.Context) error {
	return s.tc.POST(s.sessionPath("/selfie-uploaded"), nil)
}

func (s *kycSteps) requestStatus(_ context.Context) error {
	return s.tc.GET(s.sessionPath("/status"), nil)
}

func (s *kycSteps) requestExtractedData(_ context.Context) error {
	return s.tc.GET(s.sessionPath("/extracted-data"), nil)
}

func (s *kycSteps) requestResult(_ context.Context) error {
	return s.tc.GET(s.sessionPath("/result"), nil)
}

func (s *kycSteps) extractedDataAvailable(ctx context.Context) error {
	return s.poll(func() (bool, error) {
		if err := s.requestExtractedData(ctx); err != nil {
			return false, err
		}
		return s.tc.GetLastStatusCode() == 200, nil
	}, "extracted data")
}

func (s *kycSteps) statusShouldBecome(ctx context.Context, want string) error {
	return s.poll(func() (bool, error) {
		if err := s.requestStatus(ctx); err != nil {
			return false, err
		}
		got, err := s.tc.GetResponseField("status")
		if err != nil {
			return false, err
		}
		return fmt.Sprint(got) == want, nil
	}, "status "+want)
}

func (s *kycSteps) statusShouldBe(ctx context.Context, want string) error {
	if err := s.requestStatus(ctx); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("status")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected status %q, got %q", want, got)
	}
	return nil
}

func (s *kycSteps) extractedFieldShouldEqual(_ context.Context, field, want string) error {
	got, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *kycSteps) poll(check func() (bool, error), what string) error {
	deadline := time.Now().Add(pollTimeout)
	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s: last response %d %s",
				what, s.tc.GetLastStatusCode(), s.tc.GetLastResponseBody())
		}
		time.Sleep(pollInterval)
	}
}
