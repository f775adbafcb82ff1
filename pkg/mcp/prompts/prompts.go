// Package prompts registers guided analysis templates as MCP prompts.
// Each prompt renders ready-to-run KQL from its arguments plus
// interpretation guidance; nothing here touches the cluster.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
)

// PromptDeps contains dependencies for the analysis prompts.
type PromptDeps struct {
	Logger *zap.Logger
}

// RegisterPrompts registers all analysis prompts with the MCP server.
func RegisterPrompts(s *server.MCPServer, deps *PromptDeps) {
	registerTimeSeriesPrompt(s, deps)
	registerCohortPrompt(s, deps)
	registerFunnelPrompt(s, deps)
	registerDataQualityPrompt(s, deps)
}

// requireArg extracts a required prompt argument.
func requireArg(req mcp.GetPromptRequest, name string) (string, error) {
	val := strings.TrimSpace(req.Params.Arguments[name])
	if val == "" {
		return "", fmt.Errorf("%w: %s is required", apperrors.ErrValidation, name)
	}
	return val, nil
}

func user(text string) mcp.PromptMessage {
	return mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))
}

func assistant(text string) mcp.PromptMessage {
	return mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(text))
}

func registerTimeSeriesPrompt(s *server.MCPServer, deps *PromptDeps) {
	prompt := mcp.NewPrompt(
		"time_series_analysis",
		mcp.WithPromptDescription("Time series analysis for a table: hourly aggregates plus anomaly detection"),
		mcp.WithArgument("table_name", mcp.ArgumentDescription("The name of the Kusto table"), mcp.RequiredArgument()),
		mcp.WithArgument("time_column", mcp.ArgumentDescription("The column containing timestamps"), mcp.RequiredArgument()),
		mcp.WithArgument("measure_column", mcp.ArgumentDescription("The column to measure and aggregate"), mcp.RequiredArgument()),
		mcp.WithArgument("filter_condition", mcp.ArgumentDescription("Optional filter condition, without the leading 'where'")),
	)

	s.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table, err := requireArg(req, "table_name")
		if err != nil {
			return nil, err
		}
		timeCol, err := requireArg(req, "time_column")
		if err != nil {
			return nil, err
		}
		measure, err := requireArg(req, "measure_column")
		if err != nil {
			return nil, err
		}

		filterPart := ""
		if cond := strings.TrimSpace(req.Params.Arguments["filter_condition"]); cond != "" {
			filterPart = fmt.Sprintf("\n| where %s", cond)
		}

		binned := fmt.Sprintf(`// Time series analysis for %[3]s in %[1]s
%[1]s%[4]s
| where isnotnull(%[2]s) and isnotnull(%[3]s)
| summarize avg_%[3]s = avg(%[3]s),
           min_%[3]s = min(%[3]s),
           max_%[3]s = max(%[3]s),
           count_%[3]s = count() by bin(%[2]s, 1h)
| sort by %[2]s asc`, table, timeCol, measure, filterPart)

		anomalies := fmt.Sprintf(`// Detect anomalies in time series
%[1]s%[4]s
| where isnotnull(%[2]s) and isnotnull(%[3]s)
| make-series value = avg(%[3]s) on %[2]s from ago(7d) to now() step 1h
| extend anomalies = series_decompose_anomalies(value)
| mv-expand %[2]s to typeof(datetime), value to typeof(double), anomalies to typeof(double)
| where anomalies != 0
| project %[2]s, value, anomalies`, table, timeCol, measure, filterPart)

		deps.Logger.Debug("prompt rendered",
			zap.String("prompt", "time_series_analysis"),
			zap.String("table", table))
		return mcp.NewGetPromptResult(
			fmt.Sprintf("Time series analysis of %s.%s", table, measure),
			[]mcp.PromptMessage{
				user(fmt.Sprintf("I need to analyze the time series data for '%s' in the '%s' table.", measure, table)),
				assistant("I'll help you analyze this time series data. Here are some queries you can use:"),
				user("Query 1: Basic time series analysis"),
				assistant(binned),
				user("Can you also help me detect anomalies in this data?"),
				assistant("Certainly! Here's a query to detect anomalies:"),
				assistant(anomalies),
				user("What insights should I look for in these results?"),
				assistant(timeSeriesGuidance),
			},
		), nil
	})
}

const timeSeriesGuidance = `When analyzing the time series results, look for:

1. **Patterns and trends**: Are there daily, weekly, or seasonal patterns?
2. **Anomalies and outliers**: Points that deviate significantly from the pattern
3. **Sudden changes**: Sharp increases or decreases that might indicate events
4. **Missing data**: Gaps in the time series that might affect your analysis
5. **Correlations**: How this measure relates to other business metrics

For anomaly detection results, focus on:
1. The timestamp when anomalies occurred
2. The magnitude of the anomaly (how far from normal)
3. Potential external factors that coincide with the anomalies

Use the analyze_data tool with these queries to get statistical summaries.`

func registerCohortPrompt(s *server.MCPServer, deps *PromptDeps) {
	prompt := mcp.NewPrompt(
		"cohort_analysis",
		mcp.WithPromptDescription("Weekly cohort retention analysis for churn studies"),
		mcp.WithArgument("table_name", mcp.ArgumentDescription("The name of the Kusto table"), mcp.RequiredArgument()),
		mcp.WithArgument("cohort_column", mcp.ArgumentDescription("The column that identifies the cohort member, e.g. user_id"), mcp.RequiredArgument()),
		mcp.WithArgument("date_column", mcp.ArgumentDescription("The column containing event dates"), mcp.RequiredArgument()),
		mcp.WithArgument("event_column", mcp.ArgumentDescription("Optional column for filtering to specific events")),
	)

	s.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table, err := requireArg(req, "table_name")
		if err != nil {
			return nil, err
		}
		cohortCol, err := requireArg(req, "cohort_column")
		if err != nil {
			return nil, err
		}
		dateCol, err := requireArg(req, "date_column")
		if err != nil {
			return nil, err
		}

		eventFilter := ""
		if eventCol := strings.TrimSpace(req.Params.Arguments["event_column"]); eventCol != "" {
			eventFilter = fmt.Sprintf("\n| where %s == 'desired_event'", eventCol)
		}

		query := fmt.Sprintf(`// Cohort retention analysis
let cohorts = %[1]s%[4]s
| summarize min_date = min(%[3]s) by %[2]s
| summarize count() by cohort_date = startofweek(min_date);
let cohort_activities = %[1]s%[4]s
| join kind=inner (
    %[1]s
    | summarize min_date = min(%[3]s) by %[2]s
) on %[2]s
| extend weeks = datetime_diff('week', %[3]s, min_date)
| where weeks >= 0
| summarize users = count_distinct(%[2]s) by cohort_date = startofweek(min_date), weeks;
cohort_activities
| join kind=inner cohorts on cohort_date
| project cohort_date, weeks, users, percentage = (users * 100) / count_
| sort by cohort_date asc, weeks asc`, table, cohortCol, dateCol, eventFilter)

		deps.Logger.Debug("prompt rendered",
			zap.String("prompt", "cohort_analysis"),
			zap.String("table", table))
		return mcp.NewGetPromptResult(
			fmt.Sprintf("Cohort retention analysis of %s", table),
			[]mcp.PromptMessage{
				user(fmt.Sprintf("I want to perform cohort analysis on the '%s' table using '%s' to identify cohorts.", table, cohortCol)),
				assistant("I'll help you set up a cohort analysis. This will show how groups of users/entities behave over time."),
				user("What query should I use for cohort retention analysis?"),
				assistant("Here's a query for cohort retention analysis:"),
				assistant(query),
				user("How do I interpret these results?"),
				assistant(cohortGuidance),
			},
		), nil
	})
}

const cohortGuidance = `When interpreting cohort analysis results:

1. **Diagonal reading**: Each row represents a cohort, and columns show their behavior over time
2. **Retention rate**: The percentage of users who return in subsequent periods
3. **Patterns across cohorts**: Compare how different cohorts behave over time
4. **Churn analysis**: Look at where the significant drops occur
5. **Lifecycle insights**: Identify critical periods where you might lose users

Key metrics to focus on:
- Initial retention (Week 1) - immediate drop-off
- Long-term retention plateaus - your loyal base
- Cohort differences - whether newer cohorts perform better or worse than older ones

You might want to visualize this data as a heatmap for easier interpretation.`

func registerFunnelPrompt(s *server.MCPServer, deps *PromptDeps) {
	prompt := mcp.NewPrompt(
		"funnel_analysis",
		mcp.WithPromptDescription("Staged conversion funnel analysis over an ordered sequence of events"),
		mcp.WithArgument("table_name", mcp.ArgumentDescription("The name of the Kusto table"), mcp.RequiredArgument()),
		mcp.WithArgument("user_id_column", mcp.ArgumentDescription("Column that identifies the user"), mcp.RequiredArgument()),
		mcp.WithArgument("event_column", mcp.ArgumentDescription("Column that contains the event name"), mcp.RequiredArgument()),
		mcp.WithArgument("timestamp_column", mcp.ArgumentDescription("Column containing the event timestamp"), mcp.RequiredArgument()),
		mcp.WithArgument("funnel_steps", mcp.ArgumentDescription("Comma-separated event names in funnel order"), mcp.RequiredArgument()),
	)

	s.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table, err := requireArg(req, "table_name")
		if err != nil {
			return nil, err
		}
		userCol, err := requireArg(req, "user_id_column")
		if err != nil {
			return nil, err
		}
		eventCol, err := requireArg(req, "event_column")
		if err != nil {
			return nil, err
		}
		tsCol, err := requireArg(req, "timestamp_column")
		if err != nil {
			return nil, err
		}
		rawSteps, err := requireArg(req, "funnel_steps")
		if err != nil {
			return nil, err
		}

		steps := splitSteps(rawSteps)
		if len(steps) == 0 {
			return nil, fmt.Errorf("%w: funnel_steps must name at least one event", apperrors.ErrValidation)
		}

		query := fmt.Sprintf(`// Funnel analysis
let funnel_events = dynamic(['%[5]s']);
let total_users = %[1]s
| where %[3]s == funnel_events[0]
| summarize count_distinct(%[2]s);
%[1]s
| where %[3]s in (funnel_events)
| summarize timestamp = min(%[4]s) by %[2]s, %[3]s
| extend step = array_index_of(funnel_events, %[3]s)
| where step >= 0
| summarize reached_step = max(step) by %[2]s
| summarize users = count() by reached_step
| extend step_name = funnel_events[reached_step]
| extend total_users = toscalar(total_users)
| extend conversion_rate = (users * 100.0) / total_users
| sort by reached_step asc
| project step = reached_step + 1,
         step_name,
         users,
         percentage_of_total = conversion_rate,
         drop_off = iff(reached_step > 0, lag(users) - users, 0),
         drop_off_rate = iff(reached_step > 0, (lag(users) - users) * 100.0 / lag(users), 0)`,
			table, userCol, eventCol, tsCol, strings.Join(steps, "', '"))

		deps.Logger.Debug("prompt rendered",
			zap.String("prompt", "funnel_analysis"),
			zap.String("table", table),
			zap.Int("steps", len(steps)))
		return mcp.NewGetPromptResult(
			fmt.Sprintf("Funnel analysis of %s", table),
			[]mcp.PromptMessage{
				user(fmt.Sprintf("I need to analyze the conversion funnel through these steps: %s", strings.Join(steps, ", "))),
				assistant("I'll help you create a funnel analysis to track how users progress through those steps."),
				user("What KQL query should I use for the funnel analysis?"),
				assistant("Here's a query for funnel analysis:"),
				assistant(query),
				user("What insights should I look for in the funnel analysis?"),
				assistant(funnelGuidance),
			},
		), nil
	})
}

// splitSteps parses a comma-separated step list, dropping empty entries.
func splitSteps(raw string) []string {
	var steps []string
	for _, step := range strings.Split(raw, ",") {
		if step = strings.TrimSpace(step); step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}

const funnelGuidance = `When analyzing funnel results, focus on:

1. **Overall conversion rate**: Percentage of users who complete the entire funnel
2. **Step-by-step drop-off**: Where you lose the most users
3. **Critical blockage points**: Steps with unusually high drop-off rates
4. **Time between steps**: How long it takes users to move from one step to another
5. **Segment comparisons**: How different user groups perform in the funnel

Key questions to answer:
- Which step has the highest drop-off rate?
- What percentage of users complete the entire funnel?
- Are there any unexpected patterns in how users move through the funnel?
- How does this funnel performance compare to previous periods?

Consider enhancing this analysis by:
- Adding time segmentation (day/week/month)
- Filtering by user attributes
- Comparing different user segments`

func registerDataQualityPrompt(s *server.MCPServer, deps *PromptDeps) {
	prompt := mcp.NewPrompt(
		"data_quality_check",
		mcp.WithPromptDescription("Data quality assessment: completeness, duplicates, and value distributions"),
		mcp.WithArgument("table_name", mcp.ArgumentDescription("The name of the table to analyze"), mcp.RequiredArgument()),
	)

	s.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table, err := requireArg(req, "table_name")
		if err != nil {
			return nil, err
		}

		completeness := fmt.Sprintf(`// Check for completeness (missing values)
%[1]s
| summarize column_stats = bag_pack(
    "total_rows", count(),
    "columns", pack_all()
)
| mv-expand col_name = bag_keys(column_stats.columns)
| extend nulls = column_stats.columns[tostring(col_name)].nulls
| extend null_percentage = round((nulls * 100.0) / column_stats.total_rows, 2)
| project column = tostring(col_name),
         total_rows = column_stats.total_rows,
         null_count = nulls,
         null_percentage
| sort by null_percentage desc`, table)

		duplicates := fmt.Sprintf(`// Check for duplicates
%[1]s
| summarize row_count = count() by *
| where row_count > 1
| count`, table)

		distributions := fmt.Sprintf(`// Check value distributions
%[1]s
| sample 1000
| evaluate pivot(column_ifexists, values_builder(count()))`, table)

		deps.Logger.Debug("prompt rendered",
			zap.String("prompt", "data_quality_check"),
			zap.String("table", table))
		return mcp.NewGetPromptResult(
			fmt.Sprintf("Data quality assessment of %s", table),
			[]mcp.PromptMessage{
				user(fmt.Sprintf("I need to check the data quality of the '%s' table.", table)),
				assistant("I'll help you assess the data quality. Here are some queries for different quality dimensions:"),
				user("Can you give me a query to check for missing values?"),
				assistant("Here's a query to check for completeness (missing values):"),
				assistant(completeness),
				user("How about checking for duplicates?"),
				assistant("Here's a query to check for duplicates:"),
				assistant(duplicates),
				user("And how can I check the distribution of values?"),
				assistant("Here's a query to examine value distributions:"),
				assistant(distributions),
				user("What should I do with these results?"),
				assistant(dataQualityGuidance),
			},
		), nil
	})
}

const dataQualityGuidance = `When assessing data quality, consider these aspects:

1. **Completeness**: Look for columns with high null percentages
   - Are these expected missing values?
   - Does this affect your analysis?
   - Consider strategies for handling missing data (imputation, filtering, etc.)

2. **Uniqueness**: Examine duplicate records
   - Are duplicates expected in your data model?
   - Could duplicates skew your analysis results?
   - Consider deduplication strategies if needed

3. **Consistency**: Review value distributions
   - Look for unexpected values or patterns
   - Check for outliers or impossible values
   - Verify that values match your business rules

4. **Timeliness**: If your data has timestamps
   - Check for gaps in time series data
   - Verify that data is current
   - Look for unusual patterns in data freshness

Based on these findings, you might need to:
- Clean the data before analysis
- Add data quality monitoring
- Address upstream issues causing quality problems
- Document limitations in your analysis`
