package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `tallyroom keeps one shared counter per room.

- A room is selected by its access code. Tools take an optional access_code; omit it to use the default room.
- increment adds one and logs who did it. After any increment the whole room is closed for 20 seconds; a call inside that window fails with RATE_LIMITED and the remaining wait.
- button_state tells whether increment would currently succeed.
- delete_log_entry removes one log entry by id; the count is re-derived from the remaining log.
- recent_activity lists the room's journal, newest first.

Read tally://docs/overview for the document format.
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "tally://docs/overview",
		Name:        "overview",
		Title:       "tallyroom overview",
		Description: "Room document format, rate limiting and log rules.",
		Content: `# tallyroom

## Rooms

Access codes are reduced to ` + "`[A-Za-z0-9_-]`" + `; every other character becomes ` + "`_`" + `.
Codes that reduce to the same key share a room.

## Room document

| field | meaning |
|---|---|
| accessCode | room key |
| count | increments counted; re-derived from the log after a delete |
| log | newest first, at most 20 entries |
| lastIncrementTime | epoch millis of the newest increment, 0 if none |

Each log entry has an ` + "`id`" + ` (its creation time in epoch millis), a
formatted ` + "`timestamp`" + `, the ` + "`count`" + ` after the increment and a ` + "`username`" + `.

## Rate limiting

An increment closes the whole room for 20 seconds. The remaining wait is
rounded up to whole seconds. Deleting the newest entry reopens the room
relative to the next newest one.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
