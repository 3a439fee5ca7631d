package models

// OutcomeStatus is the result of one capability invocation
type OutcomeStatus string

const (
	OutcomeOk     OutcomeStatus = "ok"
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome is what a provider call returns. Failed means the tool could not
// do its job; it says nothing about the quality of what it would have made.
type Outcome struct {
	Status   OutcomeStatus
	Artifact Artifact
	Log      string
	Error    string
}

// Succeeded builds an Ok outcome carrying artifact
func Succeeded(artifact Artifact, log string) Outcome {
	return Outcome{Status: OutcomeOk, Artifact: artifact, Log: log}
}

// Failed builds a Failed outcome. An empty diagnostic is replaced so a
// failure never surfaces without text.
func Failed(diagnostic string, log string) Outcome {
	if diagnostic == "" {
		diagnostic = "provider failed without diagnostic"
	}
	return Outcome{Status: OutcomeFailed, Error: diagnostic, Log: log}
}

// FailedErr builds a Failed outcome from err, preserving its text verbatim
func FailedErr(err error, log string) Outcome {
	if err == nil {
		return Failed("", log)
	}
	return Failed(err.Error(), log)
}

// OK reports whether the provider completed
func (o Outcome) OK() bool { return o.Status == OutcomeOk }

// Validate checks that status, artifact and error agree
func (o Outcome) Validate() error {
	switch o.Status {
	case OutcomeOk:
		if o.Artifact.IsZero() {
			return Violationf("ok outcome without artifact")
		}
		if o.Error != "" {
			return Violationf("ok outcome carries error %q", o.Error)
		}
	case OutcomeFailed:
		if !o.Artifact.IsZero() {
			return Violationf("failed outcome carries artifact %s", o.Artifact.Location())
		}
		if o.Error == "" {
			return Violationf("failed outcome without error")
		}
	default:
		return Violationf("unknown outcome status %q", o.Status)
	}
	return nil
}
