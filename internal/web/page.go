package web

import (
	"compress/gzip"
	"html/template"
	"net/http"
	"strings"

	"github.com/vadiminshakov/hotdog/internal/domain"
)

type pageData struct {
	SessionID string
	DogImage  string
	State     stateView
}

// stateView is the server-rendered first paint. The page script keeps it
// current from /session/stream using the same rules.
type stateView struct {
	Headline string
	Problem  string
	Balance  string
}

func newStateView(st domain.State) stateView {
	return stateView{
		Headline: st.Headline(),
		Problem:  st.Problem(),
		Balance:  st.BalanceLine(),
	}
}

func gzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.writer.Write(b)
}

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Hero with the Sign up flow on top, dog viewer below.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>HotDog</title>
  <style>
    :root {
      --bg:#0f172a;
      --panel:rgba(15,23,42,.7);
      --line:rgba(51,65,85,.6);
      --ink:#f1f5f9;
      --ink-mid:#cbd5e1;
      --ink-soft:#94a3b8;
      --accent:#d8b4fe;
      --error:#fca5a5;
    }
    * { box-sizing:border-box; }
    body {
      margin:0;
      min-height:100vh;
      display:flex;
      justify-content:center;
      background:var(--bg);
      color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app { width:min(1150px, 100%); display:flex; flex-direction:column; gap:2.5rem; padding:1.5rem; }
    #hero {
      display:flex; align-items:center; justify-content:space-between; gap:1rem;
      border:1px solid var(--line); border-radius:1rem; background:var(--panel);
      padding:1rem 1.5rem;
    }
    .brand { display:flex; flex-direction:column; }
    .eyebrow { font-size:.8rem; font-weight:700; letter-spacing:.16em; text-transform:uppercase; color:var(--accent); }
    .subtitle { font-size:.8rem; color:var(--ink-mid); }
    .wallet { display:flex; align-items:center; gap:.75rem; font-size:.85rem; }
    #status { color:var(--ink-mid); }
    #balance { color:var(--ink-soft); }
    #problem { color:var(--error); }
    #qr { width:48px; height:48px; border-radius:.25rem; display:none; }
    #signup {
      padding:.5rem 1rem; border:0; border-radius:.75rem; cursor:pointer;
      background:linear-gradient(90deg,#8b5cf6,#a855f7,#d946ef); color:#fff; font-weight:700;
    }
    .grid { display:grid; grid-template-columns:repeat(3, 1fr); gap:2rem; }
    @media (max-width: 768px) { .grid { grid-template-columns:1fr; } }
    #title h1 { margin:0 0 .75rem; font-size:1.5rem; }
    #dogview img { width:100%; border-radius:.75rem; }
    #buttons { display:flex; gap:.5rem; margin-top:.75rem; }
    #buttons button { flex:1; padding:.5rem; border-radius:.5rem; border:1px solid var(--line); background:transparent; color:var(--ink); }
  </style>
</head>
<body>
  <div id="app">
    <div id="hero">
      <div class="brand">
        <span class="eyebrow">HotDog</span>
        <span class="subtitle">Web3 signup · Dog viewer</span>
      </div>
      <div class="wallet">
        <span id="status">{{.State.Headline}}</span>
        <span id="balance">{{.State.Balance}}</span>
        <span id="problem">{{.State.Problem}}</span>
        <img id="qr" alt="address qr code" />
        <button id="signup" type="button">Sign up</button>
      </div>
    </div>
    <div class="grid">
      <div></div>
      <div></div>
      <div>
        <div id="title"><h1>HotDog! 🌭</h1></div>
        <div id="dogview"><img src="{{.DogImage}}" alt="doggy" /></div>
        <div id="buttons">
          <button id="skip" type="button">skip</button>
          <button id="save" type="button">save!</button>
        </div>
      </div>
    </div>
  </div>
  <script>
    const session = {{.SessionID}};
    const query = "?session=" + encodeURIComponent(session);
    const statusEl = document.getElementById("status");
    const balanceEl = document.getElementById("balance");
    const problemEl = document.getElementById("problem");
    const qrEl = document.getElementById("qr");

    function render(st) {
      const addr = st.address || null;
      statusEl.textContent = addr ? "Connected: " + addr : st.status.text;
      balanceEl.textContent = st.balance ? "· ETH: " + st.balance.eth : "";
      problemEl.textContent = addr && st.status.kind === "error" ? st.status.text : "";
      if (addr) {
        qrEl.src = "/session/qr.png" + query + "&t=" + Date.parse(st.updated_at);
        qrEl.style.display = "inline-block";
      } else {
        qrEl.style.display = "none";
      }
    }

    // relays wallet requests from the server to the injected provider
    function openBridge() {
      const proto = location.protocol === "https:" ? "wss:" : "ws:";
      const ws = new WebSocket(proto + "//" + location.host + "/wallet/bridge" + query);
      ws.onopen = () => {
        const wallet = !!(window.ethereum && typeof window.ethereum.request === "function");
        ws.send(JSON.stringify({ type: "hello", wallet: wallet }));
      };
      ws.onmessage = async (ev) => {
        const msg = JSON.parse(ev.data);
        if (msg.type !== "request") return;
        try {
          if (!window.ethereum) throw { code: -32603, message: "No injected wallet found" };
          const result = await window.ethereum.request({ method: msg.method, params: msg.params });
          ws.send(JSON.stringify({ type: "response", id: msg.id, result: result === undefined ? null : result }));
        } catch (e) {
          const code = e && typeof e.code === "number" ? e.code : -32603;
          const message = e && e.message ? e.message : String(e);
          ws.send(JSON.stringify({ type: "response", id: msg.id, error: { code: code, message: message } }));
        }
      };
      ws.onclose = (ev) => {
        if (ev.code === 1008) return;
        setTimeout(openBridge, 2000);
      };
    }

    const stream = new EventSource("/session/stream" + query);
    stream.addEventListener("state", (ev) => render(JSON.parse(ev.data)));

    document.getElementById("signup").addEventListener("click", async () => {
      const res = await fetch("/session/connect" + query, { method: "POST" });
      if (res.status === 404) location.reload();
    });

    openBridge();
  </script>
</body>
</html>
`
