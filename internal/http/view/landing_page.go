package view

import (
	"bytes"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
)

// LandingPageData provides the dynamic fields of the shared-link page.
type LandingPageData struct {
	Name      string
	Kind      string
	Type      string
	Size      int64
	FileCount int
	ExpiresAt *time.Time
	DeepLink  string
	// Seconds before the page opens DeepLink on its own. Zero disables it.
	Seconds int
}

var landingFuncs = template.FuncMap{
	"bytes": func(n int64) string {
		if n <= 0 {
			return ""
		}
		return humanize.IBytes(uint64(n))
	},
	"until": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return humanize.Time(*t)
	},
}

var landingPageTmpl = template.Must(template.New("landing_page").Funcs(landingFuncs).Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Name}} · PowerStash</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			--accent-strong: #38bdf8;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(520px, 92vw);
			backdrop-filter: blur(18px);
		}
		h1 { font-size: 1.4rem; margin-bottom: 6px; word-break: break-word; }
		p, dt { color: var(--muted); }
		dl { display: grid; grid-template-columns: auto 1fr; gap: 6px 18px; margin: 24px 0; }
		dd { margin: 0; }
		a.button {
			display: inline-flex;
			align-items: center;
			padding: 0 28px;
			height: 48px;
			border-radius: 999px;
			background: linear-gradient(120deg, var(--accent), var(--accent-strong));
			color: #050708;
			font-weight: 600;
			text-decoration: none;
		}
		.timer { margin-top: 16px; font-size: 0.9rem; color: var(--muted); }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Name}}</h1>
		<p>{{if eq .Kind "batch"}}A batch of {{.FileCount}} files{{else}}A shared {{if .Type}}{{.Type}}{{else}}file{{end}}{{end}}, delivered by our Telegram bot.</p>

		<dl>
			{{with bytes .Size}}<dt>Size</dt><dd>{{.}}</dd>{{end}}
			<dt>Available</dt><dd>{{if .ExpiresAt}}until {{until .ExpiresAt}}{{else}}no expiry{{end}}</dd>
		</dl>

		<a id="cta" class="button" href="{{.DeepLink}}">Open in Telegram</a>
		{{if gt .Seconds 0}}
		<div class="timer">Opening Telegram in <span id="countdown">{{.Seconds}}</span>s…</div>
		{{end}}
	</div>

	{{if gt .Seconds 0}}
	<script>
		(function() {
			let remaining = {{.Seconds}};
			const countdown = document.getElementById("countdown");
			const target = {{.DeepLink}};
			const tick = () => {
				remaining -= 1;
				if (remaining <= 0) {
					window.location.assign(target);
					return;
				}
				countdown.textContent = remaining.toString();
				setTimeout(tick, 1000);
			};
			setTimeout(tick, 1000);
		})();
	</script>
	{{end}}
</body>
</html>
`))

// RenderLandingPage expands the landing template.
func RenderLandingPage(data LandingPageData) (string, error) {
	if data.Name == "" {
		data.Name = "Shared file"
	}
	var buf bytes.Buffer
	if err := landingPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
