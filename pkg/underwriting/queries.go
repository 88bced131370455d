package underwriting

// Subscription documents.
const (
	ProjectUpdatedQuery = `subscription OnProjectUpdated {
  onProjectUpdated { id name address status updatedAt }
}`

	DocumentUpdatedQuery = `subscription OnDocumentUpdated($projectId: ID!) {
  onDocumentUpdated(projectId: $projectId) { id projectId name key contentType status error updatedAt }
}`

	InsightCreatedQuery = `subscription OnInsightCreated($projectId: ID!) {
  onInsightCreated(projectId: $projectId) { id projectId documentId category summary confidence data createdAt }
}`
)

type projectUpdated struct {
	OnProjectUpdated Project `json:"onProjectUpdated"`
}

type documentUpdated struct {
	OnDocumentUpdated Document `json:"onDocumentUpdated"`
}

type insightCreated struct {
	OnInsightCreated Insight `json:"onInsightCreated"`
}
