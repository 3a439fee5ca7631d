package capability

import (
	"fmt"

	"mesh-orchestrator/core/models"
)

// Invoke runs one provider call under the provider contract:
//   - the input kind is checked before the call
//   - a panic inside the call becomes a Failed outcome carrying the panic text
//   - an error that is not a ContractViolation becomes a Failed outcome
//   - the returned outcome must be internally consistent and, when Ok, carry
//     exactly the kind the provider declares
//
// The returned error is non-nil only for contract violations.
func Invoke(c Capability, in models.Artifact, call func() (models.Outcome, error)) (outcome models.Outcome, err error) {
	if err := RequireInput(c, in); err != nil {
		return models.Outcome{}, err
	}

	outcome, err = protect(c.Name(), call)
	if err != nil {
		if models.IsContractViolation(err) {
			return models.Outcome{}, err
		}
		return models.FailedErr(err, outcome.Log), nil
	}

	if verr := outcome.Validate(); verr != nil {
		return models.Outcome{}, models.ProviderViolationf(c.Name(), "%s", verr.Error())
	}
	if outcome.OK() && outcome.Artifact.Kind() != c.Produces() {
		return models.Outcome{}, models.ProviderViolationf(c.Name(), "produced %s, declared %s",
			outcome.Artifact.Kind(), c.Produces())
	}
	return outcome, nil
}

func protect(name string, call func() (models.Outcome, error)) (outcome models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			if cv, ok := r.(*models.ContractViolation); ok {
				outcome, err = models.Outcome{}, cv
				return
			}
			outcome, err = models.Failed(fmt.Sprintf("%s panicked: %v", name, r), ""), nil
		}
	}()
	return call()
}
