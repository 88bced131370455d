// Package config loads the YAML configuration shared by the command-line
// tools: the GraphQL endpoint, credentials, reconnect policy, protocol
// capture and named subscription documents.
//
// Example:
//
//	endpoint: https://abc.appsync-api.eu-central-1.amazonaws.com/graphql
//	auth:
//	  mode: bearer
//	  tokenEnv: UW_ID_TOKEN
//	reconnect:
//	  delay: 3s
//	subscriptions:
//	  - name: documents
//	    query: |
//	      subscription OnDocument($projectId: ID!) {
//	        onDocumentUpdated(projectId: $projectId) { id status }
//	      }
//	    variables:
//	      projectId: p-1
//
// Secrets can be kept out of the file with apiKeyEnv, tokenEnv or
// tokenFile; a token file is re-read every time a header is built.
package config
