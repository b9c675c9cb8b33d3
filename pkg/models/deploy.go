package models

// PublishEndpoint is a scoring endpoint whose model slot can be repointed at a new model blob.
type PublishEndpoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Key  string `json:"-"`
}

// DeployOutcomeKind tags the result of the deploy decision for one endpoint.
type DeployOutcomeKind string

const (
	OutcomeDeployed     DeployOutcomeKind = "deployed"
	OutcomeNotImproved  DeployOutcomeKind = "not_improved"
	OutcomeDeployFailed DeployOutcomeKind = "deploy_failed"
)

// DeployOutcome records what happened for one publish endpoint.
// Reason is set only for OutcomeDeployFailed.
type DeployOutcome struct {
	Kind     DeployOutcomeKind `json:"kind"`
	Endpoint string            `json:"endpoint"`
	Reason   string            `json:"reason,omitempty"`
}

func Deployed(endpoint string) DeployOutcome {
	return DeployOutcome{Kind: OutcomeDeployed, Endpoint: endpoint}
}

func NotImproved(endpoint string) DeployOutcome {
	return DeployOutcome{Kind: OutcomeNotImproved, Endpoint: endpoint}
}

func DeployFailed(endpoint string, err error) DeployOutcome {
	return DeployOutcome{Kind: OutcomeDeployFailed, Endpoint: endpoint, Reason: err.Error()}
}
