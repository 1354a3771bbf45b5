package api

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/server"
	"github.com/kbukum/taskflow/sse"
)

// eventHeader is the part of an encoded dag.Event the stream inspects.
type eventHeader struct {
	Seq  uint64        `json:"seq"`
	Kind dag.EventKind `json:"kind"`
}

func decodeHeader(f sse.Frame) (eventHeader, bool) {
	var h eventHeader
	if f.Event != "" {
		return h, false
	}
	if err := json.Unmarshal(f.Data, &h); err != nil {
		return h, false
	}
	return h, true
}

// kindFilter keeps frames whose kind is listed in the comma-separated
// kinds query value. The run summary always passes so the stream ends.
func kindFilter(kinds string) func(sse.Frame) bool {
	if kinds == "" {
		return nil
	}
	keep := map[dag.EventKind]bool{dag.EventRunSummary: true}
	for _, k := range strings.Split(kinds, ",") {
		keep[dag.EventKind(strings.TrimSpace(k))] = true
	}
	return func(f sse.Frame) bool {
		h, ok := decodeHeader(f)
		return !ok || keep[h.Kind]
	}
}

func isRunEnd(f sse.Frame) bool {
	if f.Event == sse.EventTypeError {
		return true
	}
	h, ok := decodeHeader(f)
	return ok && h.Kind == dag.EventRunSummary
}

// streamEvents sends every event of the run so far, then live events until
// the run summary. Finished runs replay their stored events and close.
func (h *Handler) streamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, _, err := h.runs.Events(ctx, id); err != nil {
		server.RespondWithError(c, err)
		return
	}

	filter := kindFilter(c.Query("kinds"))
	clientOpts := []sse.ClientOption{sse.WithMetadata("run_id", id)}
	if filter != nil {
		clientOpts = append(clientOpts, sse.WithFilter(filter))
	}
	client := sse.NewClient(dag.RunTopic(id), clientOpts...)

	var last uint64
	backlog := func() []sse.Frame {
		events, _, err := h.runs.Events(ctx, id)
		if err != nil {
			h.log.WithContext(ctx).Warn("event backlog unavailable", logger.MergeWithError(
				map[string]interface{}{logger.FieldRunID: id}, err))
			return []sse.Frame{{Event: sse.EventTypeError, Data: []byte(`{"error":"event backlog unavailable"}`)}}
		}
		frames := make([]sse.Frame, 0, len(events))
		for _, ev := range events {
			last = ev.Seq
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			f := sse.Frame{Data: data}
			if filter == nil || filter(f) {
				frames = append(frames, f)
			}
		}
		return frames
	}
	skip := func(f sse.Frame) bool {
		hdr, ok := decodeHeader(f)
		return ok && hdr.Seq <= last
	}

	sse.ServeSSE(h.hub, c.Writer, c.Request, client,
		sse.WithBacklog(backlog),
		sse.WithSkip(skip),
		sse.WithCloseOn(isRunEnd),
	)
}
