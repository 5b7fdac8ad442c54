package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/service"
)

// Callback data values. Parameterised ones carry their arguments after a
// colon.
const (
	cbHelp             = "help"
	cbAbout            = "about"
	cbContact          = "contact"
	cbStats            = "stats"
	cbBatchHelp        = "batch_help"
	cbUserMgmt         = "user_mgmt"
	cbSettings         = "settings"
	cbBack             = "back"
	cbSearch           = "search"
	cbBroadcast        = "broadcast"
	cbBroadcastConfirm = "bc:confirm"
	cbBroadcastCancel  = "bc:cancel"
	cbTTLPrefix        = "ttl:"
	cbPostPrefix       = "post:"
)

type ttlChoice struct {
	label   string
	minutes int
}

var ttlChoices = []ttlChoice{
	{"10 min", 10},
	{"1 hour", 60},
	{"24 hours", 24 * 60},
	{"7 days", 7 * 24 * 60},
	{"Never", 0},
}

var backKeyboard = service.Keyboard{{{Text: "⬅️ Back", Data: cbBack}}}

func userMenuKeyboard() service.Keyboard {
	return service.Keyboard{
		{{Text: "📖 How to Use", Data: cbHelp}, {Text: "ℹ️ About", Data: cbAbout}},
		{{Text: "🔍 Search", Data: cbSearch}, {Text: "📞 Contact Admin", Data: cbContact}},
	}
}

func adminMenuKeyboard() service.Keyboard {
	return service.Keyboard{
		{{Text: "📊 Statistics", Data: cbStats}, {Text: "📁 Batch Mode", Data: cbBatchHelp}},
		{{Text: "👥 User Management", Data: cbUserMgmt}, {Text: "📢 Broadcast", Data: cbBroadcast}},
		{{Text: "ℹ️ About", Data: cbAbout}, {Text: "🔧 Settings", Data: cbSettings}},
	}
}

// ttlKeyboard offers the delete times for the upload in messageID.
func ttlKeyboard(messageID int) service.Keyboard {
	row1 := make([]service.Button, 0, 3)
	row2 := make([]service.Button, 0, 2)
	for i, c := range ttlChoices {
		b := service.Button{Text: c.label, Data: fmt.Sprintf("%s%d:%d", cbTTLPrefix, c.minutes, messageID)}
		if i < 3 {
			row1 = append(row1, b)
		} else {
			row2 = append(row2, b)
		}
	}
	return service.Keyboard{row1, row2}
}

// parseTTLData reverses the data built by ttlKeyboard.
func parseTTLData(data string) (minutes, messageID int, ok bool) {
	rest, found := strings.CutPrefix(data, cbTTLPrefix)
	if !found {
		return 0, 0, false
	}
	rawMinutes, rawID, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, false
	}
	minutes, err := strconv.Atoi(rawMinutes)
	if err != nil || minutes < 0 {
		return 0, 0, false
	}
	messageID, err = strconv.Atoi(rawID)
	if err != nil || messageID <= 0 {
		return 0, 0, false
	}
	return minutes, messageID, true
}

func linkKeyboard(label, url string) service.Keyboard {
	return service.Keyboard{
		{{Text: label, URL: url}},
		{{Text: "📊 View Stats", Data: cbStats}},
	}
}

func broadcastConfirmKeyboard() service.Keyboard {
	return service.Keyboard{
		{{Text: "✅ Confirm Broadcast", Data: cbBroadcastConfirm}},
		{{Text: "❌ Cancel", Data: cbBroadcastCancel}},
	}
}

func searchResultsKeyboard(posts []model.SearchPost) service.Keyboard {
	kb := make(service.Keyboard, 0, len(posts))
	for _, p := range posts {
		kb = append(kb, []service.Button{{
			Text: truncate(p.Title, 48),
			Data: cbPostPrefix + strconv.FormatUint(p.ID, 10),
		}})
	}
	return kb
}

func parsePostData(data string) (uint64, bool) {
	raw, found := strings.CutPrefix(data, cbPostPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
