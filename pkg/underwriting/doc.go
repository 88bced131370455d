// Package underwriting provides typed realtime feeds for the underwriting
// API: project updates, document status changes and analysis insights.
//
// Feeds wrap realtime.Subscribe with the subscription documents and payload
// types of each feed. Because sessions never re-subscribe on their own,
// Feeds also remembers every registration and can re-issue the ones that
// were lost to a reconnect:
//
//	feeds := underwriting.NewFeeds()
//	session, _ := realtime.Connect(ctx, endpoint, auth, realtime.Options{
//		OnAck: feeds.Resubscribe,
//	})
//	feeds.Attach(session)
//	feeds.DocumentUpdates("p-1", onDocument, onError)
package underwriting
