package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/maksimkurb/keen-netstate/src/internal/config"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// RenderPlan renders one line per planned interface using tmpl, in apply
// order, followed by one line per route scope and rule table. An empty tmpl
// uses config.DefaultPlanTemplate.
func RenderPlan(plan *reconcile.Plan, tmpl string) string {
	if plan == nil || plan.Empty() {
		return "No changes\n"
	}
	if tmpl == "" {
		tmpl = config.DefaultPlanTemplate
	}
	t := fasttemplate.New(tmpl, "{{", "}}")

	var sb strings.Builder
	sections := []struct {
		op   string
		list []state.Interface
	}{
		{"delete", plan.Delete},
		{"add", plan.Add},
		{"change", plan.Change},
	}
	for _, section := range sections {
		for _, iface := range section.list {
			sb.WriteString(renderInterface(t, section.op, iface))
			sb.WriteByte('\n')
		}
	}

	for _, name := range plan.RouteIfaces() {
		fmt.Fprintf(&sb, "routes %s: %d entr%s\n", name, len(plan.Routes[name]), plural(len(plan.Routes[name])))
	}
	for _, table := range plan.RuleTables() {
		fmt.Fprintf(&sb, "rules table %d: %d entr%s\n", table, len(plan.Rules[table]), plural(len(plan.Rules[table])))
	}
	return sb.String()
}

func renderInterface(t *fasttemplate.Template, op string, iface state.Interface) string {
	b := iface.Base()
	controller := b.ControllerName()
	if controller == "" {
		controller = "-"
	}
	return t.ExecuteString(map[string]interface{}{
		config.PLAN_TMPL_OP:         op,
		config.PLAN_TMPL_TYPE:       string(b.Type),
		config.PLAN_TMPL_NAME:       b.Name,
		config.PLAN_TMPL_PRIORITY:   strconv.FormatUint(uint64(b.UpPriority), 10),
		config.PLAN_TMPL_CONTROLLER: controller,
	})
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
