// Package mastra is a Go client SDK for Mastra-compatible agent servers.
//
// A Client wraps the server's REST surface: agents, memory threads,
// workflows and tools. Buffered calls return decoded values; the agent
// streaming routes return a RecordStream over the server's record-framed
// wire protocol (JSON documents separated by an ASCII Record Separator
// byte). When client-side tools are registered, the streaming routes
// transparently execute them mid-stream and continue the exchange with
// follow-up requests, so callers iterate one uninterrupted stream.
//
// Basic usage:
//
//	client, err := mastra.New("http://localhost:4111")
//	if err != nil { ... }
//	stream, err := client.Agent("weather").Stream(ctx, mastra.StreamParams{
//	    Messages: []mastra.Message{mastra.UserMessage("What's the weather in Oslo?")},
//	})
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//	    rec := stream.Current()
//	    // handle rec
//	}
//	if err := stream.Err(); err != nil { ... }
package mastra
