package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"precedent/internal/app"
	"precedent/internal/domain"
	"precedent/internal/engine"
)

func decisionCmd() *cobra.Command {
	d := &cobra.Command{Use: "decision", Aliases: []string{"d"}, Short: "Manage decisions"}
	d.AddCommand(decisionListCmd())
	d.AddCommand(decisionShowCmd())
	d.AddCommand(decisionCreateCmd())
	d.AddCommand(decisionUpdateCmd())
	d.AddCommand(decisionDeleteCmd())
	d.AddCommand(decisionRelatedCmd())
	return d
}

func decisionListCmd() *cobra.Command {
	var spec engine.QuerySpec
	var sortMode string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := engine.ParseSortMode(sortMode)
			if err != nil {
				return err
			}
			spec.Sort = mode
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListDecisions(ctx, spec)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Tags", "Confidence", "Impact", "Draft", "Created"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Title, strings.Join(d.ContextTags, ", "), d.ConfidenceLevel, impactText(d), d.IsDraft, d.CreatedAt})
				}
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 40}, {Number: 3, WidthMax: 40}})
				tw.AppendFooter(table.Row{"", fmt.Sprintf("%d decisions", len(items))})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&spec.SearchTerm, "query", "q", "", "search title, summary, reasoning and selected option")
	cmd.Flags().StringVar(&spec.Tag, "tag", engine.FilterAll, "context tag filter")
	cmd.Flags().StringVar(&spec.Confidence, "confidence", engine.FilterAll, "confidence level filter (1-5)")
	cmd.Flags().StringVar(&sortMode, "sort", string(engine.SortRecent), "sort: recent, confidence or impact")
	return cmd
}

func decisionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a decision with its related decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Engine.GetDecision(ctx, args[0])
				if err != nil {
					return err
				}
				related, err := a.Engine.Related(ctx, d.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"decision": d, "related": related})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(a.Config.Decisions.TypeLabel + ": " + d.Title)
				tw.AppendRows([]table.Row{
					{"ID", d.ID},
					{"Summary", d.Summary},
					{"Tags", strings.Join(d.ContextTags, ", ")},
					{"Constraints", d.Constraints},
					{"Options", optionsText(d.OptionsConsidered)},
					{"Selected", d.SelectedOption},
					{"Reasoning", d.Reasoning},
					{"Risks", d.RisksAssumptions},
					{"Confidence", a.Config.ConfidenceLabel(d.ConfidenceLevel)},
					{"Impact", impactText(d)},
					{"Outcome", d.Outcome},
					{"Draft", d.IsDraft},
					{"Approvers", strings.Join(d.Approvers, ", ")},
					{"Owner", d.OwnerID},
					{"Created", d.CreatedAt},
					{"Updated", d.UpdatedAt},
				})
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Colors: text.Colors{text.Bold}}, {Number: 2, WidthMax: 80}})
				tw.Render()
				if len(related) > 0 {
					renderRelated(a, related)
				}
				return nil
			})
		},
	}
}

func decisionCreateCmd() *cobra.Command {
	var form engine.DecisionForm
	var opts []string
	var impact float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseOptions(opts)
			if err != nil {
				return err
			}
			form.OptionsConsidered = parsed
			if cmd.Flags().Changed("impact") {
				form.EstimatedImpactValue = &impact
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Engine.CreateDecision(ctx, form, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Created %s %s\n", d.ID, d.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&form.Title, "title", "", "title")
	cmd.Flags().StringVar(&form.Summary, "summary", "", "summary")
	cmd.Flags().StringArrayVar(&form.ContextTags, "tag", nil, "context tag (repeatable)")
	cmd.Flags().StringVar(&form.Constraints, "constraints", "", "constraints")
	cmd.Flags().StringArrayVar(&opts, "option", nil, `option considered as "Label: description" (repeatable)`)
	cmd.Flags().StringVar(&form.SelectedOption, "selected", "", "label of the selected option")
	cmd.Flags().StringVar(&form.Reasoning, "reasoning", "", "reasoning")
	cmd.Flags().StringVar(&form.RisksAssumptions, "risks", "", "risks and assumptions")
	cmd.Flags().IntVar(&form.ConfidenceLevel, "confidence", 0, "confidence 1-5 (default 3)")
	cmd.Flags().Float64Var(&impact, "impact", 0, "estimated impact value")
	cmd.Flags().StringVar(&form.EstimatedImpactLabel, "impact-label", "", "estimated impact label")
	cmd.Flags().StringVar(&form.Outcome, "outcome", "", "outcome")
	cmd.Flags().BoolVar(&form.IsDraft, "draft", false, "save as draft")
	cmd.Flags().StringArrayVar(&form.Approvers, "approver", nil, "approver (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func decisionUpdateCmd() *cobra.Command {
	var (
		title, summary, constraints, selected, reasoning, risks, impactLabel, outcome string
		tags, opts, approvers                                                         []string
		confidence                                                                    int
		impact                                                                        float64
		clearImpact, draft                                                            bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.DecisionPatch
			changed := cmd.Flags().Changed
			for flag, target := range map[string]**string{
				"title":        &p.Title,
				"summary":      &p.Summary,
				"constraints":  &p.Constraints,
				"selected":     &p.SelectedOption,
				"reasoning":    &p.Reasoning,
				"risks":        &p.RisksAssumptions,
				"impact-label": &p.EstimatedImpactLabel,
				"outcome":      &p.Outcome,
			} {
				if changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					*target = &v
				}
			}
			if changed("tag") {
				p.ContextTags = &tags
			}
			if changed("option") {
				parsed, err := parseOptions(opts)
				if err != nil {
					return err
				}
				p.OptionsConsidered = &parsed
			}
			if changed("approver") {
				p.Approvers = &approvers
			}
			if changed("confidence") {
				p.ConfidenceLevel = &confidence
			}
			if changed("impact") {
				p.EstimatedImpactValue = &impact
			}
			p.ClearImpactValue = clearImpact
			if changed("draft") {
				p.IsDraft = &draft
			}
			if p.Empty() {
				return fmt.Errorf("nothing to update")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				d, err := a.Engine.UpdateDecision(ctx, args[0], p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Updated %s %s\n", d.ID, d.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&summary, "summary", "", "summary")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "context tags, replaces the list (repeatable)")
	cmd.Flags().StringVar(&constraints, "constraints", "", "constraints")
	cmd.Flags().StringArrayVar(&opts, "option", nil, `options, replaces the list, as "Label: description" (repeatable)`)
	cmd.Flags().StringVar(&selected, "selected", "", "label of the selected option")
	cmd.Flags().StringVar(&reasoning, "reasoning", "", "reasoning")
	cmd.Flags().StringVar(&risks, "risks", "", "risks and assumptions")
	cmd.Flags().IntVar(&confidence, "confidence", 0, "confidence 1-5")
	cmd.Flags().Float64Var(&impact, "impact", 0, "estimated impact value")
	cmd.Flags().BoolVar(&clearImpact, "clear-impact", false, "remove the estimated impact value")
	cmd.Flags().StringVar(&impactLabel, "impact-label", "", "estimated impact label")
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome")
	cmd.Flags().BoolVar(&draft, "draft", false, "draft flag")
	cmd.Flags().StringArrayVar(&approvers, "approver", nil, "approvers, replaces the list (repeatable)")
	return cmd
}

func decisionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a decision and its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Engine.DeleteDecision(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func decisionRelatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "related <id>",
		Short: "Show decisions linked to a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				related, err := a.Engine.Related(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(related)
				}
				renderRelated(a, related)
				return nil
			})
		},
	}
}

func renderRelated(a *app.Context, related []domain.LinkedDecision) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Related")
	tw.AppendHeader(table.Row{"Direction", "Relationship", "ID", "Title", "Link"})
	for _, r := range related {
		tw.AppendRow(table.Row{r.Direction, a.Config.RelationshipLabel(string(r.RelationshipType)), r.ID, r.Title, r.LinkID})
	}
	tw.Render()
}

func linkCmd() *cobra.Command {
	l := &cobra.Command{Use: "link", Short: "Manage links between decisions"}

	var form engine.LinkForm
	var relType string
	var score float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Link two decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			form.RelationshipType = domain.RelationshipType(strings.ToLower(strings.TrimSpace(relType)))
			if cmd.Flags().Changed("score") {
				form.ConfidenceScore = &score
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				link, err := a.Engine.CreateLink(ctx, form, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(link)
				}
				fmt.Printf("Linked %s -[%s]-> %s (%s)\n", link.FromID, link.RelationshipType, link.ToID, link.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&form.FromID, "from", "", "source decision id")
	create.Flags().StringVar(&form.ToID, "to", "", "target decision id")
	create.Flags().StringVar(&relType, "type", string(domain.RelationshipRelated), "similar, supersedes or related")
	create.Flags().Float64Var(&score, "score", 0, "confidence score 0-1")
	_ = create.MarkFlagRequired("from")
	_ = create.MarkFlagRequired("to")

	del := &cobra.Command{
		Use:   "delete <link-id>",
		Short: "Remove a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				link, err := a.Engine.DeleteLink(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Removed %s -[%s]-> %s\n", link.FromID, link.RelationshipType, link.ToID)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <decision-id>",
		Short: "List raw links of a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				out, in, err := a.Engine.DecisionLinks(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"outbound": out, "inbound": in})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Link", "From", "Type", "To", "Score", "Created by"})
				for _, group := range [][]domain.DecisionLink{out, in} {
					for _, l := range group {
						tw.AppendRow(table.Row{l.ID, l.FromID, l.RelationshipType, l.ToID, scoreText(l.ConfidenceScore), l.CreatedBy})
					}
				}
				tw.Render()
				return nil
			})
		},
	}

	l.AddCommand(create, del, list)
	return l
}

// parseOptions reads "Label: description" pairs. A value without a colon is a
// bare label.
func parseOptions(raw []string) ([]domain.Option, error) {
	out := make([]domain.Option, 0, len(raw))
	for _, r := range raw {
		label, desc, _ := strings.Cut(r, ":")
		label, desc = strings.TrimSpace(label), strings.TrimSpace(desc)
		if label == "" && desc != "" {
			return nil, fmt.Errorf("option %q has no label", r)
		}
		if label == "" {
			continue
		}
		out = append(out, domain.Option{Label: label, Description: desc})
	}
	return out, nil
}

func optionsText(opts []domain.Option) string {
	lines := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Description == "" {
			lines = append(lines, o.Label)
			continue
		}
		lines = append(lines, o.Label+": "+o.Description)
	}
	return strings.Join(lines, "\n")
}

func impactText(d domain.DecisionRecord) string {
	var parts []string
	if d.EstimatedImpactValue != nil {
		parts = append(parts, strconv.FormatFloat(*d.EstimatedImpactValue, 'f', -1, 64))
	}
	if d.EstimatedImpactLabel != "" {
		parts = append(parts, d.EstimatedImpactLabel)
	}
	return strings.Join(parts, " ")
}

func scoreText(s *float64) string {
	if s == nil {
		return ""
	}
	return strconv.FormatFloat(*s, 'f', 2, 64)
}
