// Package prehook runs the configurable checks that gate a process before
// anything is executed.
package prehook

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"idverify/internal/identityverification/dependency"
	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/models"
)

// Verification types.
const (
	TypeProcessSequence = "process_sequence"
	TypeUserClaim       = "user_claim"
)

// Input is everything a verification may look at.
type Input struct {
	Process      string
	Dependencies *models.Dependencies
	Request      map[string]any
	User         map[string]any
	Completed    map[string]bool
}

// Verifier performs one kind of check. It returns violation messages; a
// configuration it cannot decode is reported as a violation too.
type Verifier interface {
	Verify(in Input, details map[string]any) []string
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(in Input, details map[string]any) []string

func (f VerifierFunc) Verify(in Input, details map[string]any) []string {
	return f(in, details)
}

// Validator dispatches verification specs to registered verifiers.
type Validator struct {
	verifiers map[string]Verifier
}

// New returns a Validator with the built-in verifiers registered.
func New() *Validator {
	v := &Validator{verifiers: map[string]Verifier{}}
	v.Register(TypeProcessSequence, VerifierFunc(processSequence))
	v.Register(TypeUserClaim, VerifierFunc(userClaim))
	return v
}

// Register adds or replaces the verifier for typ.
func (v *Validator) Register(typ string, verifier Verifier) {
	v.verifiers[typ] = verifier
}

// Supports reports whether typ has a registered verifier.
func (v *Validator) Supports(typ string) bool {
	_, ok := v.verifiers[typ]
	return ok
}

// Validate runs specs in order and accumulates their messages.
func (v *Validator) Validate(in Input, specs []models.VerificationSpec) []string {
	var msgs []string
	for _, spec := range specs {
		verifier, ok := v.verifiers[spec.Type]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("Unsupported pre hook verification type: %s", spec.Type))
			continue
		}
		msgs = append(msgs, verifier.Verify(in, spec.Details)...)
	}
	return msgs
}

// HasProcessSequence reports whether specs already include the ordering check.
func HasProcessSequence(specs []models.VerificationSpec) bool {
	for _, spec := range specs {
		if spec.Type == TypeProcessSequence {
			return true
		}
	}
	return false
}

func processSequence(in Input, _ map[string]any) []string {
	return dependency.Check(in.Process, in.Dependencies, in.Completed)
}

type userClaimDetails struct {
	VerificationParameters []userClaimParameter `mapstructure:"verification_parameters"`
}

type userClaimParameter struct {
	RequestJSONPath   string `mapstructure:"request_json_path"`
	UserClaimJSONPath string `mapstructure:"user_claim_json_path"`
}

func userClaim(in Input, details map[string]any) []string {
	var cfg userClaimDetails
	if err := mapstructure.Decode(details, &cfg); err != nil {
		return []string{fmt.Sprintf("User claim verification details are invalid: %v", err)}
	}

	var msgs []string
	for _, p := range cfg.VerificationParameters {
		requested, okReq := mapping.Lookup(in.Request, p.RequestJSONPath)
		claimed, okUser := mapping.Lookup(in.User, p.UserClaimJSONPath)
		if okReq && okUser && sameValue(requested, claimed) {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("User claim verification failed. unmatched: %s, user:%s",
			p.RequestJSONPath, p.UserClaimJSONPath))
	}
	return msgs
}

func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return mapping.Stringify(a) == mapping.Stringify(b)
}
