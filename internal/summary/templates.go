package summary

// htmlTemplate is the standalone report page.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{if .Name}}{{.Name}}{{else}}stampede run{{end}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f8fafc;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
            --accent-primary: #3b82f6;
            --accent-success: #22c55e;
            --accent-warning: #f59e0b;
            --accent-error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }

        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }

        .card {
            background: var(--bg-primary);
            border-radius: 12px;
            padding: 1.5rem 2rem;
            margin-bottom: 2rem;
            box-shadow: var(--shadow);
        }

        .header { display: flex; justify-content: space-between; align-items: center; flex-wrap: wrap; gap: 1rem; }
        .header h1 { font-size: 1.75rem; font-weight: 700; }
        .meta { display: flex; gap: 2rem; font-size: 0.875rem; color: var(--text-secondary); }

        .status { padding: 0.75rem 1.5rem; border-radius: 8px; font-weight: 600; }
        .status.pass { background-color: rgba(34, 197, 94, 0.1); color: var(--accent-success); }
        .status.fail { background-color: rgba(239, 68, 68, 0.1); color: var(--accent-error); }

        .notice { color: var(--accent-warning); font-weight: 600; margin-top: 0.5rem; }

        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; }
        .stat .label { font-size: 0.8rem; color: var(--text-secondary); text-transform: uppercase; }
        .stat .value { font-size: 1.5rem; font-weight: 700; }

        h2 { font-size: 1.1rem; margin-bottom: 1rem; }

        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-secondary); font-weight: 600; }
        td.num { font-variant-numeric: tabular-nums; }

        .pass { color: var(--accent-success); }
        .fail { color: var(--accent-error); }

        .chart-container { position: relative; height: 320px; }
    </style>
</head>
<body>
<div class="container">
    <div class="card header">
        <div>
            <h1>{{if .Name}}{{.Name}}{{else}}stampede run{{end}}</h1>
            <div class="meta">
                <span>{{reportTime .StartTime}}</span>
                <span>{{formatDuration .Duration}}</span>
                <span>{{.ID}}</span>
            </div>
            {{if .Abort}}<p class="notice">{{.Abort.Error}}</p>{{end}}
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">
            {{if .Passed}}✓ PASSED{{else}}✗ FAILED{{end}}
        </div>
    </div>

    <div class="card stats">
        <div class="stat"><div class="label">Iterations</div><div class="value">{{formatNumber .Iterations}}</div></div>
        <div class="stat"><div class="label">Failed iterations</div><div class="value">{{formatNumber .FailedIterations}}</div></div>
        {{with .Metrics}}
        <div class="stat"><div class="label">Peak VUs</div><div class="value">{{.MaxVUs}}</div></div>
        <div class="stat"><div class="label">Steady rate</div><div class="value">{{printf "%.1f" .SteadyStateRate}}/s</div></div>
        {{end}}
    </div>

    {{if .Thresholds}}
    <div class="card">
        <h2>Thresholds</h2>
        <table>
            <tr><th></th><th>Metric</th><th>Threshold</th><th>Observed</th></tr>
            {{range .Thresholds}}
            <tr>
                <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</td>
                <td>{{.Metric}}</td>
                <td><code>{{.Expression}}</code></td>
                <td class="num">{{.Actual}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Checks}}
    <div class="card">
        <h2>Checks</h2>
        <table>
            <tr><th>Check</th><th>Passes</th><th>Failures</th><th>Success</th></tr>
            {{range .Checks}}
            <tr>
                <td>{{.Name}}</td>
                <td class="num pass">{{formatNumber .Passes}}</td>
                <td class="num {{if .Fails}}fail{{end}}">{{formatNumber .Fails}}</td>
                <td class="num">{{formatPercent .Rate}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .TimeSeries}}
    <div class="card">
        <h2>Throughput</h2>
        <div class="chart-container"><canvas id="throughputChart"></canvas></div>
    </div>
    {{end}}

    {{if .Trends}}
    <div class="card">
        <h2>Trends</h2>
        <table>
            <tr><th>Metric</th><th>avg</th><th>min</th><th>med</th><th>max</th><th>p(90)</th><th>p(95)</th><th>p(99)</th><th>count</th></tr>
            {{range .Trends}}
            <tr><td>{{.Name}}</td>{{range .Values}}<td class="num">{{.}}</td>{{end}}</tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Others}}
    <div class="card">
        <h2>Other metrics</h2>
        <table>
            <tr><th>Metric</th><th>Type</th><th>Value</th><th></th></tr>
            {{range .Others}}
            <tr><td>{{.Name}}</td><td>{{.Kind}}</td>{{range .Values}}<td class="num">{{.}}</td>{{end}}</tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Stages}}
    <div class="card">
        <h2>Stages</h2>
        <table>
            <tr><th>#</th><th>Name</th><th>Target</th><th>Active at end</th><th>Duration</th><th>Status</th></tr>
            {{range .Stages}}
            <tr>
                <td>{{.Index}}</td><td>{{.Name}}</td><td class="num">{{.Target}}</td>
                <td class="num">{{.ActiveAtEnd}}</td><td>{{formatDuration .Duration}}</td><td>{{.Status}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Warnings}}
    <div class="card">
        <h2>Warnings</h2>
        <ul>{{range .Warnings}}<li class="notice">{{.}}</li>{{end}}</ul>
    </div>
    {{end}}
</div>

<script>
    const timeSeries = {{.TimeSeriesJSON}};
    if (timeSeries.length > 0 && typeof Chart !== 'undefined') {
        new Chart(document.getElementById('throughputChart'), {
            type: 'line',
            data: {
                labels: timeSeries.map(p => p.elapsed.toFixed(0) + 's'),
                datasets: [
                    { label: 'iterations/s', data: timeSeries.map(p => p.rate), borderColor: '#3b82f6', yAxisID: 'y' },
                    { label: 'active VUs', data: timeSeries.map(p => p.activeVUs), borderColor: '#22c55e', yAxisID: 'y1' },
                    { label: 'iteration p95 (ms)', data: timeSeries.map(p => p.p95), borderColor: '#f59e0b', yAxisID: 'y2', hidden: true }
                ]
            },
            options: {
                maintainAspectRatio: false,
                interaction: { mode: 'index', intersect: false },
                scales: {
                    y: { position: 'left', beginAtZero: true },
                    y1: { position: 'right', beginAtZero: true, grid: { drawOnChartArea: false } },
                    y2: { display: false, beginAtZero: true }
                }
            }
        });
    }
</script>
</body>
</html>
`
