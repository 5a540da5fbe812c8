// Package chatform builds a chatbot web UI around a caller-supplied response
// function: it wires chat components (textbox, chat view, buttons) to event
// chains (submit, retry, undo, clear, stop), normalizes single-shot and
// streaming responses into incremental history updates, and exposes a
// programmatic chat entry point alongside the interactive surface.
//
// Ownership model:
//   - Each Orchestrator owns its session manager, dispatcher, and layout;
//     nothing is process-global.
//   - Applications own transport routes; Router is an optional convenience
//     for mounting the standard /api and /ws surface.
//
// Recommended setup:
//   - Build an Orchestrator with New and a Config holding Func or Stream.
//   - Mount NewRouter(o) or the individual handler constructors.
//   - Attach websocket clients via /ws; drive actions via POST /api/event;
//     call POST /api/chat (or Orchestrator.Chat) for programmatic use.
package chatform
