// Package bridge connects a host UI's text messages to a composition engine.
//
// A Bridge owns one engine. It is created immediately and initializes the
// engine on a background goroutine; until initialization finishes, inbound
// messages are dropped.
//
//	host ──key:/layout:──▶ HandleMessage ──▶ ParseCommand ──▶ engine
//	                                                            │
//	host ◀──context:/layout:/debug:── Poster ◀── BuildContext ◀─┘
//
// Lifecycle:
//
//	Uninitialized ──New──▶ Initializing ──ok──▶ Ready ──Close──▶ Terminated
//	                           │                                    ▲
//	                           └──────────fail / Close──────────────┘
//
// Every key command produces exactly one context: response, every layout
// command one layout: response, and anything else one debug: response.
package bridge
