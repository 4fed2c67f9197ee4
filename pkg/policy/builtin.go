package policy

// GetBuiltinPolicies returns all built-in lint policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		timeoutPositivePolicy(),
		ignoredHasReasonPolicy(),
		deploymentItemPathPolicy(),
		ownerRecommendedPolicy(),
	}
}

// timeoutPositivePolicy rejects negative test timeouts.
func timeoutPositivePolicy() Policy {
	return Policy{
		Name:        "timeout-positive",
		Description: "Declared test timeouts must be positive",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"timeout"},
		Rego: `package tessera.policies.timeout

import rego.v1

deny contains violation if {
	input.test.timeout_ms < 0
	violation := {
		"message": sprintf("Test %s declares a negative timeout (%d ms)", [input.test.id, input.test.timeout_ms]),
		"severity": "error",
	}
}
`,
	}
}

// ignoredHasReasonPolicy asks ignored tests to say why.
func ignoredHasReasonPolicy() Policy {
	return Policy{
		Name:        "ignored-has-reason",
		Description: "Ignored tests should carry a reason",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"hygiene"},
		Rego: `package tessera.policies.ignore

import rego.v1

deny contains violation if {
	input.test.ignored
	not input.test.ignore_reason
	violation := {
		"message": sprintf("Test %s is ignored without a reason", [input.test.id]),
		"severity": "warning",
	}
}
`,
	}
}

// deploymentItemPathPolicy keeps deployment items inside the test output.
func deploymentItemPathPolicy() Policy {
	return Policy{
		Name:        "deployment-item-path",
		Description: "Deployment items must use relative paths that stay inside the deployment directory",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"deployment"},
		Rego: `package tessera.policies.deployment

import rego.v1

deny contains violation if {
	some item in input.test.deployment_items
	item.path == ""
	violation := {
		"message": sprintf("Test %s declares a deployment item without a path", [input.test.id]),
		"severity": "error",
	}
}

deny contains violation if {
	some item in input.test.deployment_items
	startswith(item.path, "/")
	violation := {
		"message": sprintf("Test %s deploys absolute path '%s'", [input.test.id, item.path]),
		"severity": "error",
	}
}

deny contains violation if {
	some item in input.test.deployment_items
	contains(item.path, "..")
	violation := {
		"message": sprintf("Test %s deploys '%s' outside the deployment directory", [input.test.id, item.path]),
		"severity": "error",
	}
}
`,
	}
}

// ownerRecommendedPolicy flags tests without an owner.
func ownerRecommendedPolicy() Policy {
	return Policy{
		Name:        "owner-recommended",
		Description: "Tests should name an owner",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"ownership"},
		Rego: `package tessera.policies.owner

import rego.v1

deny contains violation if {
	not input.test.owner
	violation := {
		"message": sprintf("Test %s has no owner", [input.test.id]),
		"severity": "info",
	}
}
`,
	}
}
