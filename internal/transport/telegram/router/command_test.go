package router

import "testing"

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		kind CommandKind
		args int
	}{
		{"/start", CmdStart, 0},
		{"/help", CmdHelp, 0},
		{"/tasks", CmdTasks, 0},
		{"/tasks@crm_bot", CmdTasks, 0},
		{"  /DEALS now", CmdDeals, 1},
		{"/tasksx", CmdUnrecognized, 0},
		{"/", CmdUnrecognized, 0},
		{"hello /tasks", CmdPlainText, 0},
		{"", CmdPlainText, 0},
	}
	for _, tc := range cases {
		got := ParseCommand(tc.in)
		if got.Kind != tc.kind || len(got.Args) != tc.args {
			t.Fatalf("ParseCommand(%q) = %v/%d args, want %v/%d", tc.in, got.Kind, len(got.Args), tc.kind, tc.args)
		}
	}
}

func TestParseCallback(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		kind CallbackKind
		id   int64
	}{
		{"task_42", CbTask, 42},
		{"deal_7", CbDeal, 7},
		{"task_", CbTask, 0},
		{"deal_abc", CbDeal, 0},
		{"task_-3", CbTask, 0},
		{"client_1", CbUnknown, 0},
		{"", CbUnknown, 0},
	}
	for _, tc := range cases {
		got := ParseCallback(tc.in)
		if got.Kind != tc.kind || got.ID != tc.id {
			t.Fatalf("ParseCallback(%q) = %+v, want kind=%d id=%d", tc.in, got, tc.kind, tc.id)
		}
	}
	if p := TaskPayload(9); ParseCallback(p) != (Callback{Kind: CbTask, ID: 9}) {
		t.Fatalf("payload %q does not parse back", p)
	}
}
