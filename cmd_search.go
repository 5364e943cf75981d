package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/idea"
)

type searchFlags struct {
	maxResults   int
	contentTypes []string
	language     string
	region       string
	after        string
	before       string
	minDuration  time.Duration
	maxDuration  time.Duration
	transcripts  bool
	comments     bool
	apiKey       string
	validateKey  bool
	jsonOut      bool
}

func newSearchCommand(tuning *string) *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search <idea>",
		Short: "Run one search and print the ranked videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*tuning)
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), cfg, appOptions{history: true})
			defer a.Close()

			if f.validateKey && f.apiKey != "" {
				if err := a.service.Provider().ValidateKey(cmd.Context(), f.apiKey); err != nil {
					return fmt.Errorf("api key check: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "api key ok")
			}

			resp, err := a.service.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if f.jsonOut {
				return writeJSON(cmd, resp)
			}
			printSearch(cmd, resp)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.maxResults, "max", "n", cliDefaultMax, "Maximum videos to return (1-200)")
	fl.StringSliceVarP(&f.contentTypes, "type", "t", nil, "Content type filter, repeatable (tutorial, review, music, ...)")
	fl.StringVar(&f.language, "lang", "", "Language code filter, e.g. en")
	fl.StringVar(&f.region, "region", "", "Region code filter, e.g. US")
	fl.StringVar(&f.after, "after", "", "Only videos published after this date (YYYY-MM-DD or RFC3339)")
	fl.StringVar(&f.before, "before", "", "Only videos published before this date (YYYY-MM-DD or RFC3339)")
	fl.DurationVar(&f.minDuration, "min-duration", 0, "Minimum video length, e.g. 5m")
	fl.DurationVar(&f.maxDuration, "max-duration", 0, "Maximum video length, e.g. 20m")
	fl.BoolVar(&f.transcripts, "transcripts", false, "Fetch transcripts for the returned videos (200 quota units each)")
	fl.BoolVar(&f.comments, "comments", false, "Attach top comments to the returned videos")
	fl.StringVar(&f.apiKey, "api-key", "", "Use this YouTube API key instead of YOUTUBE_API_KEY")
	fl.BoolVar(&f.validateKey, "validate-key", false, "Check --api-key with a one-unit call before searching")
	fl.BoolVar(&f.jsonOut, "json", false, "Print the full response as JSON")
	return cmd
}

const cliDefaultMax = 20

func (f searchFlags) request(ideaText string) (engine.SearchRequest, error) {
	req := engine.SearchRequest{
		Idea:               ideaText,
		MaxResults:         f.maxResults,
		ContentTypes:       f.contentTypes,
		Language:           f.language,
		Region:             f.region,
		IncludeTranscripts: f.transcripts,
		IncludeComments:    f.comments,
		APIKey:             f.apiKey,
	}
	var err error
	if req.PublishedAfter, err = parseDate(f.after); err != nil {
		return req, fmt.Errorf("--after: %w", err)
	}
	if req.PublishedBefore, err = parseDate(f.before); err != nil {
		return req, fmt.Errorf("--before: %w", err)
	}
	if f.minDuration > 0 {
		s := int(f.minDuration.Seconds())
		req.MinDuration = &s
	}
	if f.maxDuration > 0 {
		s := int(f.maxDuration.Seconds())
		req.MaxDuration = &s
	}
	return req, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

func printSearch(cmd *cobra.Command, resp engine.SearchResponse) {
	out := cmd.OutOrStdout()
	qi := resp.QueryInfo
	fmt.Fprintf(out, "Idea: %s\n", qi.OriginalIdea)
	fmt.Fprintf(out, "Keywords: %s | types: %s | intent: %s | confidence %.2f\n",
		strings.Join(qi.ProcessedKeywords, ", "), strings.Join(qi.DetectedContentTypes, ", "), qi.Intent, qi.Confidence)

	rows := make([][]string, 0, len(resp.Videos))
	for _, v := range resp.Videos {
		rows = append(rows, []string{
			strconv.Itoa(v.Rank),
			engine.TruncateRunes(v.Title, 60, "..."),
			engine.TruncateRunes(v.ChannelTitle, 24, "..."),
			formatSeconds(v.Duration),
			formatCount(v.ViewCount),
			fmt.Sprintf("%.3f", v.RelevanceScore),
			fmt.Sprintf("%.3f", v.QualityScore),
			v.URL,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Title", "Channel", "Length", "Views", "Relevance", "Quality", "URL"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))

	fmt.Fprintf(out, "%d of %d results in %dms, quota used %d, remaining %d\n",
		len(resp.Videos), resp.TotalResults, resp.SearchTimeMS, resp.QuotaUsed, resp.QuotaRemaining)
	if resp.Degraded {
		fmt.Fprintln(out, "Results are partial:")
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(out, "  ! %s\n", w)
	}
	if len(resp.Suggestions) > 0 {
		fmt.Fprintf(out, "Try also: %s\n", strings.Join(resp.Suggestions, " | "))
	}
}

func newInterpretCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "interpret <idea>",
		Short: "Show how an idea is interpreted, without calling YouTube",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := idea.New()
			interpreted, err := in.Interpret(strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := engine.InterpretOutput{
				QueryInfo:   engine.NewQueryInfo(interpreted),
				SearchText:  idea.SearchText(interpreted),
				Suggestions: idea.Suggest(interpreted),
			}
			if jsonOut {
				return writeJSON(cmd, out)
			}
			qi := out.QueryInfo
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, [][]string{
				{"keywords", strings.Join(qi.ProcessedKeywords, ", ")},
				{"content types", strings.Join(qi.DetectedContentTypes, ", ")},
				{"topics", strings.Join(qi.MainTopics, ", ")},
				{"intent", qi.Intent},
				{"confidence", fmt.Sprintf("%.2f", qi.Confidence)},
				{"search text", out.SearchText},
				{"suggestions", strings.Join(out.Suggestions, " | ")},
			}, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func formatSeconds(s int) string {
	if s <= 0 {
		return "-"
	}
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func formatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	}
	return strconv.FormatInt(n, 10)
}
