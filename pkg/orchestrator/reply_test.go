package orchestrator

import "testing"

func TestStripCitations(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Result: 42 【3:1†doc】", "Result: 42"},
		{"a 【12:3†source】 b 【4:0†notes.pdf】", "a  b"},
		{"【1:1†x】", ""},
		{"no markers here", "no markers here"},
		{"half bracket 【12:3 source】 stays", "half bracket 【12:3 source】 stays"},
	}
	for _, c := range cases {
		got := StripCitations(c.in)
		if got != c.want {
			t.Fatalf("StripCitations(%q) = %q, want %q", c.in, got, c.want)
		}
		if again := StripCitations(got); again != got {
			t.Fatalf("StripCitations not idempotent on %q: %q", got, again)
		}
	}
}

func TestRepairTablesInsertsSeparator(t *testing.T) {
	in := "| Name | Count |\n| a | 1 |\n| b | 2 |"
	want := "| Name | Count |\n|---|---|\n| a | 1 |\n| b | 2 |"
	if got := RepairTables(in); got != want {
		t.Fatalf("RepairTables = %q, want %q", got, want)
	}
}

func TestRepairTablesKeepsExistingSeparator(t *testing.T) {
	in := "| Name | Count |\n|---|---|\n| a | 1 |"
	if got := RepairTables(in); got != in {
		t.Fatalf("valid table modified: %q", got)
	}
	aligned := "| Name | Count |\n| :--- | ---: |\n| a | 1 |"
	if got := RepairTables(aligned); got != aligned {
		t.Fatalf("aligned separator modified: %q", got)
	}
}

func TestRepairTablesIdempotent(t *testing.T) {
	in := "intro\n\n| A | B |\n| 1 | 2 |\n\ntail"
	once := RepairTables(in)
	if twice := RepairTables(once); twice != once {
		t.Fatalf("RepairTables not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestRepairTablesLeavesNonTablesAlone(t *testing.T) {
	cases := []string{
		"plain text",
		"a | b without leading pipe",
		"| single row |",
		"code `a | b` sample\ndone",
	}
	for _, in := range cases {
		if got := RepairTables(in); got != in {
			t.Fatalf("RepairTables(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestRepairTablesMultipleBlocks(t *testing.T) {
	in := "| A | B |\n| 1 | 2 |\n\ntext\n\n| C |\n| 3 |"
	want := "| A | B |\n|---|---|\n| 1 | 2 |\n\ntext\n\n| C |\n|---|\n| 3 |"
	if got := RepairTables(in); got != want {
		t.Fatalf("RepairTables = %q, want %q", got, want)
	}
}

func TestCleanReply(t *testing.T) {
	in := "See below 【7:2†paper】\n\n| K | V |\n| x | 1 |"
	want := "See below\n\n| K | V |\n|---|---|\n| x | 1 |"
	if got := CleanReply(in); got != want {
		t.Fatalf("CleanReply = %q, want %q", got, want)
	}
}
