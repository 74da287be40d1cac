// Package tpproto defines the Touch Portal side of the bridge: the static
// manifest declarations, the commands the host sends over the plugin's
// standard channels, and the events the bridge emits back.
//
// The identifiers below are the ones the host dispatches verbatim, so the
// command validator and the generated entry.tp manifest both derive from
// this single set of declarations.
package tpproto

import (
	"encoding/json"
	"strings"
)

const (
	PluginID      = "tp.plugin.websockets"
	PluginName    = "Websockets"
	SDKVersion    = 6
	PluginVersion = 10

	CategoryMainID = PluginID + ".main"

	SendMessageActionID = PluginID + ".act.sendmessage"
	DestinationDataID   = SendMessageActionID + ".data.destination"
	MessageDataID       = SendMessageActionID + ".data.message"

	// DefaultFieldValue is what the host supplies for a text field the user
	// never filled in.
	DefaultFieldValue = "<None>"

	PluginStartCmd = "%TP_PLUGIN_FOLDER%wsbridge/wsbridge run"
)

// Action names on the wire are the last segment of the declared action id.
const (
	ActionNameSendMessage = "sendmessage"
	ActionNameClosePlugin = "closeplugin"
)

// Manifest is the entry.tp document shape.
type Manifest struct {
	SDK            int        `json:"sdk"`
	Version        int        `json:"version"`
	Name           string     `json:"name"`
	ID             string     `json:"id"`
	Configuration  Colors     `json:"configuration"`
	PluginStartCmd string     `json:"plugin_start_cmd"`
	Categories     []Category `json:"categories"`
}

type Colors struct {
	ColorDark  string `json:"colorDark"`
	ColorLight string `json:"colorLight"`
}

type Category struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Actions []Action `json:"actions"`
}

type Action struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Prefix    string       `json:"prefix"`
	Type      string       `json:"type"`
	TryInline bool         `json:"tryInline"`
	Format    string       `json:"format"`
	Data      []ActionData `json:"data"`
}

type ActionData struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Label   string `json:"label"`
	Default string `json:"default"`
}

// BuildManifest assembles the entry.tp manifest from the declarations above.
func BuildManifest() Manifest {
	return Manifest{
		SDK:     SDKVersion,
		Version: PluginVersion,
		Name:    PluginName,
		ID:      PluginID,
		Configuration: Colors{
			ColorDark:  "#25274c",
			ColorLight: "#707ab5",
		},
		PluginStartCmd: PluginStartCmd,
		Categories: []Category{
			{
				ID:   CategoryMainID,
				Name: PluginName,
				Actions: []Action{
					{
						ID:        SendMessageActionID,
						Name:      "Send Message",
						Prefix:    PluginName,
						Type:      "communicate",
						TryInline: true,
						Format:    "Send the text string {$" + MessageDataID + "$} to {$" + DestinationDataID + "$}",
						Data: []ActionData{
							{
								ID:      DestinationDataID,
								Type:    "text",
								Label:   "Destination",
								Default: DefaultFieldValue,
							},
							{
								ID:      MessageDataID,
								Type:    "text",
								Label:   "Message",
								Default: DefaultFieldValue,
							},
						},
					},
				},
			},
		},
	}
}

// MarshalIndent renders the manifest as entry.tp JSON.
func (m Manifest) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ActionName reduces a declared action id to its wire name, the segment
// after the last dot.
func ActionName(actionID string) string {
	if i := strings.LastIndex(actionID, "."); i >= 0 {
		return actionID[i+1:]
	}
	return actionID
}
