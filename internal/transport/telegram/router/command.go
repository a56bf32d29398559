package router

import (
	"strconv"
	"strings"
)

// CommandKind is the closed set of recognized message kinds.
type CommandKind int

const (
	CmdPlainText CommandKind = iota
	CmdStart
	CmdHelp
	CmdTasks
	CmdDeals
	CmdUnrecognized
)

var commandNames = map[CommandKind]string{
	CmdPlainText:    "text",
	CmdStart:        "start",
	CmdHelp:         "help",
	CmdTasks:        "tasks",
	CmdDeals:        "deals",
	CmdUnrecognized: "unknown",
}

func (k CommandKind) String() string { return commandNames[k] }

var commandsByWord = map[string]CommandKind{
	"start": CmdStart,
	"help":  CmdHelp,
	"tasks": CmdTasks,
	"deals": CmdDeals,
}

type Command struct {
	Kind CommandKind
	Name string   // command word without slash and @botname
	Args []string // remaining whitespace-separated tokens
}

// ParseCommand classifies message text. "/tasks@crm_bot" matches /tasks;
// any other slash word is CmdUnrecognized; everything else is plain text.
func ParseCommand(text string) Command {
	parts := strings.Fields(text)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return Command{Kind: CmdPlainText}
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	kind, ok := commandsByWord[word]
	if !ok {
		kind = CmdUnrecognized
	}
	return Command{Kind: kind, Name: word, Args: parts[1:]}
}

// CallbackKind is the closed set of inline button payload kinds.
type CallbackKind int

const (
	CbUnknown CallbackKind = iota
	CbTask
	CbDeal
)

const (
	taskPrefix = "task_"
	dealPrefix = "deal_"
)

// Callback is a parsed button payload. ID is 0 when the id part is malformed.
type Callback struct {
	Kind CallbackKind
	ID   int64
}

func ParseCallback(data string) Callback {
	var (
		kind CallbackKind
		rest string
	)
	switch {
	case strings.HasPrefix(data, taskPrefix):
		kind, rest = CbTask, data[len(taskPrefix):]
	case strings.HasPrefix(data, dealPrefix):
		kind, rest = CbDeal, data[len(dealPrefix):]
	default:
		return Callback{Kind: CbUnknown}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		id = 0
	}
	return Callback{Kind: kind, ID: id}
}

func TaskPayload(id int64) string { return taskPrefix + strconv.FormatInt(id, 10) }
func DealPayload(id int64) string { return dealPrefix + strconv.FormatInt(id, 10) }
