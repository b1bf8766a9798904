/*
Package generation consumes the chunked content generation stream.

# Overview

A Session posts one Request to {apiBase}/stream/{contentKind} and reads the
response as event:/data: frame pairs. Text from chunk frames is appended to
the raw buffer and the whole buffer is re-parsed as JSON after every chunk;
a failed parse keeps the previous value. When the request asks for a
derived asset the session waits after complete for the asset frames.

# States

	Idle -> Connecting -> Streaming -> Complete
	                         |
	                         +-> (complete, asset wanted) -> GeneratingAsset -> AssetComplete
	                         |                                     |
	                         |                               asset_error -> Complete
	                         +-> error frame / transport failure -> Error

Cancel returns any non-terminal session to Idle. Observers of the cancelled
run are never called again, even for frames already in flight.

# Frames

	event: chunk           data: {"content": "..."}
	event: complete        data: {"content": <optional JSON>}
	event: asset_start     data: {}
	event: asset_complete  data: {"asset_data": "...", "asset_prompt_used": "...", "extracted_themes": [...]}
	event: asset_error     data: {"error": "..."}
	event: error           data: {"error": "..."}

Unknown frame types are ignored.

# Usage

	gen := generation.NewGenerator(httpClient, generation.Config{
		APIBaseURL: apiBase,
		Token:      token,
	}, generation.GeneratorConfig{
		ContentKind:   "devotional",
		GenerateAsset: true,
		OnComplete:    func(s generation.Snapshot) { ... },
	}, logger)

	session := gen.Generate(ctx, "Advent hope")
	snap, _ := session.Wait(ctx)
	if snap.State.Succeeded() {
		result, _ := gen.Accept()
	}
*/
package generation
