package graph

import (
	"strings"
	"testing"

	"github.com/aretw0/botfactory/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	spec := &domain.BotSpec{Flows: []domain.FlowSpec{
		{
			EntryCmd: "/book",
			Type:     "wizard",
			Steps: []domain.StepSpec{
				{Ask: "Which service?", Var: "service", Validate: &domain.Validation{Regex: "^(massage|spa)$"}},
				{Ask: "When?", Var: "slot"},
			},
			OnComplete: []domain.Action{
				domain.NewAction(domain.TagSQLExec, map[string]any{"sql": "INSERT"}),
				domain.NewAction(domain.TagReplyTemplate, map[string]any{"text": "ok"}),
			},
		},
		{
			EntryCmd: "/mine",
			OnEnter: []domain.Action{
				domain.NewAction(domain.TagSQLQuery, map[string]any{"result_var": "rows"}),
				domain.NewAction("action.custom.v9", nil),
			},
		},
	}}

	got := GenerateMermaid(spec, &Overlay{FlowID: "/book", StepIndex: 1})

	expected := []string{
		"graph TD",
		`f0_entry(("/book"))`,
		`f0_step0[/"Which service? <br/> service"/]`,
		`f0_entry --> f0_step0`,
		`f0_step0 -. "^(massage|spa)$" .-> f0_step0`,
		`f0_step0 --> f0_step1`,
		`f0_done0[["sql_exec"]]`,
		`f0_done1 --> f0_end`,
		`f0_end(["done"])`,
		`f1_enter0[["sql_query -> rows"]]`,
		`f1_enter1[["unknown: action.custom.v9"]]`,
		`f1_enter1 --> f1_end`,
		`class f0_step1 current`,
	}
	for _, exp := range expected {
		if !strings.Contains(got, exp) {
			t.Errorf("expected output to contain %q\n%s", exp, got)
		}
	}
}

func TestGenerateMermaid_NoOverlay(t *testing.T) {
	spec := &domain.BotSpec{Flows: []domain.FlowSpec{{EntryCmd: `/say"hi"`}}}
	got := GenerateMermaid(spec, nil)
	if strings.Contains(got, "classDef current") {
		t.Error("did not expect a current step highlight")
	}
	if !strings.Contains(got, `f0_entry(("/say'hi'"))`) {
		t.Errorf("expected quotes to be escaped, got:\n%s", got)
	}
	if GenerateMermaid(nil, nil) != "graph TD\n" {
		t.Error("expected an empty graph for a nil spec")
	}
}

func TestOverlayFromState(t *testing.T) {
	if OverlayFromState(nil) != nil {
		t.Error("expected nil overlay")
	}
	st := domain.NewWizardState("/book")
	st.StepIndex = 1
	if o := OverlayFromState(st); o.FlowID != "/book" || o.StepIndex != 1 {
		t.Errorf("unexpected overlay %+v", o)
	}
}
