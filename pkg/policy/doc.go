// Package policy lints discovered tests with Open Policy Agent (OPA) Rego
// policies.
//
// Every policy is a Rego module whose package defines a deny set. Each
// discovered test is evaluated separately with this input document:
//
//	{
//	  "test":     { "id": "...", "owner": "...", "timeout_ms": 0, ... },
//	  "settings": { "workers": -1, "scope": 0, "can_parallelize": true },
//	  "context":  { "run_id": "...", "assembly": "...", "timestamp": "..." }
//	}
//
// A deny entry is either a message string or an object with "message" and an
// optional "severity" overriding the policy default.
//
// # Built-in Policies
//
//   - timeout-positive (error): declared timeouts must not be negative
//   - ignored-has-reason (warning): ignored tests carry a reason
//   - deployment-item-path (error): deployment items are relative and stay inside the output
//   - owner-recommended (info): tests name an owner
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, report)
//
// User policies are loaded from .rego files (warning severity, named after
// the file) or .json files carrying a full Policy. Loader.Watch reloads them
// when files change.
package policy
