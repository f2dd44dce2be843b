package html

const stylesTemplate = `{{ define "styles" }}
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; padding: 0; background: #f7f7f8; color: #202124; }
		main { max-width: 960px; margin: 0 auto; padding: 32px 24px 48px; }
		header { background: #212a3b; color: #f7f7f8; padding: 32px 24px; }
		header h1 { margin: 0 0 8px; font-size: 28px; }
		header p { margin: 4px 0; opacity: 0.8; }
		section { margin-top: 32px; }
		section h2 { margin-bottom: 12px; font-size: 20px; }
		table { width: 100%; border-collapse: collapse; background: #fff; border-radius: 10px; overflow: hidden; box-shadow: 0 4px 12px rgba(13,28,39,0.10); font-size: 14px; }
		th, td { padding: 8px 12px; text-align: right; border-bottom: 1px solid rgba(91,112,131,0.16); }
		th:first-child, td:first-child { text-align: left; }
		th { color: #5b7083; font-weight: 600; text-transform: uppercase; font-size: 12px; letter-spacing: 0.04em; }
		td.severity-critical { color: #c62828; font-weight: 600; }
		td.severity-warning { color: #b25600; font-weight: 600; }
		.plan-tree { list-style: none; margin: 0; padding: 0; }
		.node-card { background: #fff; border-radius: 12px; margin-bottom: 12px; position: relative; padding: 14px 18px; box-shadow: 0 8px 20px rgba(16,37,58,0.12); border-left: 6px solid rgba(33,42,59,0.1); }
		.node-card::after { content: ""; position: absolute; inset: 0; border-radius: inherit; background: linear-gradient(90deg, rgba(244,71,71,var(--heat)) 0%, rgba(244,71,71,0) 72%); opacity: 0.35; pointer-events: none; }
		.node-card.skipped { opacity: 0.7; border-left-style: dashed; }
		.node-header { position: relative; z-index: 1; display: flex; justify-content: space-between; gap: 12px; align-items: baseline; }
		.node-label { font-weight: 600; font-size: 15px; }
		.node-metrics { font-size: 13px; color: #5b7083; }
		.node-detail { position: relative; z-index: 1; margin-top: 4px; font-size: 12px; color: #5b7083; }
		.bar { position: relative; z-index: 1; margin-top: 10px; background: rgba(33,42,59,0.08); border-radius: 999px; height: 8px; overflow: hidden; }
		.bar span { display: block; height: 100%; border-radius: inherit; background: linear-gradient(90deg, #f44747 0%, #faae32 100%); width: calc(var(--width) * 1%); }
		.node-children { list-style: none; margin-left: 24px; border-left: 1px dashed rgba(33,42,59,0.15); padding-left: 20px; }
		.histogram td.label { width: 90px; }
		.insight-list { list-style: none; margin: 0; padding: 0; display: flex; flex-direction: column; gap: 10px; }
		.insight-list li { background: #fff; border-radius: 12px; padding: 14px 16px; box-shadow: 0 4px 12px rgba(13,28,39,0.10); font-size: 14px; color: #253043; display: flex; align-items: center; gap: 10px; }
		.insight-list li a { color: inherit; }
		.insight-list li.severity-critical { border-left: 4px solid #f44747; }
		.insight-list li.severity-warning { border-left: 4px solid #faae32; }
		.insight-list li.severity-info { border-left: 4px solid rgba(33,42,59,0.15); }
	</style>
{{ end }}

{{ define "insights" }}
	{{- if . }}
		<section>
			<h2>Insights</h2>
			<ul class="insight-list">
				{{- range . }}
				<li class="severity-{{.Severity}}"><span class="icon">{{.Icon}}</span><span class="insight-text">
					{{- if .Anchor -}}
						<a href="#{{.Anchor}}">{{.Text}}</a>
					{{- else -}}
						{{.Text}}
					{{- end -}}
				</span></li>
				{{- end }}
			</ul>
		</section>
	{{- end }}
{{ end }}`

const selectivityTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	{{- if .IncludeStyles }}{{ template "styles" }}{{ end }}
</head>
<body>
	<header>
		<h1>{{.Title}}</h1>
		<p>Queries {{.Summary.Queries}} · Nodes {{.Summary.Nodes}} · Max join level {{.Summary.MaxJoinLevel}}</p>
	</header>
	<main>
		{{ template "insights" .Insights }}

		<section>
			<h2>|q-error| by join level</h2>
			<table>
				<tr><th>Join level</th><th>Nodes</th><th>Median</th><th>95%</th><th>Max</th></tr>
				{{- range .JoinLevels }}
				<tr><td>{{.Key}}</td><td>{{.Count}}</td><td>{{.Median}}</td><td>{{.P95}}</td><td>{{.Max}}</td></tr>
				{{- end }}
			</table>
		</section>

		<section>
			<h2>Top node per query</h2>
			<table>
				<tr><th>Query</th><th>Max join level</th><th>Top node</th><th>q-error</th><th>Total cost</th><th>Execution</th><th>Planning</th></tr>
				{{- range .Queries }}
				<tr><td><a href="#{{.Anchor}}">{{.ID}}</a></td><td>{{.MaxJoinLevel}}</td><td>{{.TopNode}}</td><td class="severity-{{.Severity}}">{{.TopQError}}</td><td>{{.TotalCost}}</td><td>{{.ExecutionTime}}</td><td>{{.PlanningTime}}</td></tr>
				{{- end }}
			</table>
		</section>

		{{- range .Trees }}
		<section id="{{.Anchor}}">
			<h2>Plan {{.QueryID}}</h2>
			<ul class="plan-tree">
				{{ template "node" .Root }}
			</ul>
		</section>
		{{- end }}
	</main>

	{{ define "node" }}
	<li>
		<div class="node-card{{if .Skipped}} skipped{{end}}" id="{{.Anchor}}" style="--heat: {{printf "%.3f" .Heat}};">
			<div class="node-header">
				<span class="node-label">{{.Label}}</span>
				<span class="node-metrics">level {{.Level}} · {{.Rows}} · {{.QError}}</span>
			</div>
			<div class="node-detail">{{.Detail}}</div>
			<div class="bar"><span style="--width: {{printf "%.2f" .BarWidth}};"></span></div>
		</div>
		{{- if .Children }}
		<ul class="node-children">
			{{- range .Children }}
				{{ template "node" . }}
			{{- end }}
		</ul>
		{{- end }}
	</li>
	{{ end }}
</body>
</html>
`

const comparisonTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	{{- if .IncludeStyles }}{{ template "styles" }}{{ end }}
</head>
<body>
	<header>
		<h1>{{.Title}}</h1>
	</header>
	<main>
		<section>
			<h2>Time ratios</h2>
			<table>
				<tr><th>Comparison</th><th>Queries</th><th>Median</th><th>95%</th><th>Max</th></tr>
				{{- range .Comparisons }}
				<tr><td>{{.Name}}</td><td>{{.Shared}}{{if .Skipped}} ({{.Skipped}} skipped){{end}}</td><td>{{.Median}}</td><td>{{.P95}}</td><td>{{.Max}}</td></tr>
				{{- end }}
			</table>
		</section>

		{{- range .Comparisons }}
		<section>
			<h2>{{.Name}}</h2>
			<table class="histogram">
				{{- range .Histogram }}
				<tr><td class="label">{{.Label}}</td><td><div class="bar"><span style="--width: {{printf "%.2f" .Percent}};"></span></div></td><td>{{printf "%.1f" .Percent}}% ({{.Count}})</td></tr>
				{{- end }}
			</table>
		</section>
		{{ template "insights" .Insights }}
		{{- end }}
	</main>
</body>
</html>
`
