package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"futures_control/internal/engine"
	"futures_control/internal/models"
)

type Server struct {
	engine *engine.Engine
	port   string
}

func NewServer(engine *engine.Engine, port string) *Server {
	return &Server{
		engine: engine,
		port:   port,
	}
}

func (s *Server) Start() {
	http.HandleFunc("/", s.handleIndex)
	http.HandleFunc("/api/state", s.handleState)
	http.HandleFunc("/api/open", s.recovered(s.handleOpen))
	http.HandleFunc("/api/close-market", s.recovered(s.handleCloseMarket))
	http.HandleFunc("/api/close-limit", s.recovered(s.handleCloseLimit))
	http.HandleFunc("/api/toggle", s.recovered(s.handleToggle))
	http.HandleFunc("/api/health", s.handleHealth)
	http.Handle("/metrics", promhttp.Handler())

	log.Printf("🌐 Control panel starting on http://localhost:%s", s.port)
	go func() {
		if err := http.ListenAndServe(":"+s.port, nil); err != nil {
			log.Printf("Web server error: %v", err)
		}
	}()
}

// recovered keeps a panicking handler from killing the whole process
func (s *Server) recovered(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("❌ Panic in %s: %v", r.URL.Path, rec)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.State())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Coin string `json:"coin"`
		Side string `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	side, err := models.ParseSide(data.Side)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := s.engine.Open(ctx, data.Coin, side)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleCloseMarket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Coin string `json:"coin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.engine.CloseMarket(ctx, data.Coin); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
}

func (s *Server) handleCloseLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Coin  string  `json:"coin"`
		Price float64 `json:"price"`
		Raw   string  `json:"raw"`
	}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Remember the operator's input even when the order is rejected, so
	// the panel re-renders it after refresh.
	s.engine.CacheLimitPrice(data.Coin, data.Raw)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.engine.CloseLimit(ctx, data.Coin, data.Price); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Coin      string `json:"coin"`
		Window    string `json:"window"`
		Condition string `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	state, err := s.engine.ToggleExit(data.Coin, models.TimeFrame(data.Window), data.Condition)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"result": "ok", "enabled": state})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownCoin),
		errors.Is(err, models.ErrUnknownToggle),
		errors.Is(err, models.ErrInvalidPrice),
		errors.Is(err, models.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPositionOpen):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoPosition):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Futures Control Panel</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            background: #0b0e11;
            color: #eaecef;
            min-height: 100vh;
            padding: 20px;
        }

        .container {
            max-width: 960px;
            margin: 0 auto;
        }

        h1 {
            font-size: 24px;
            margin-bottom: 8px;
        }

        .meta {
            color: #848e9c;
            font-size: 13px;
            margin-bottom: 24px;
        }

        .panel {
            border-radius: 14px;
            padding: 18px;
            margin-bottom: 24px;
            background: #14181d;
            border-left: 5px solid;
        }

        .panel.btc { border-left-color: #f0b90b; }
        .panel.eth { border-left-color: #5b8def; }

        h2 {
            font-size: 18px;
            margin-bottom: 12px;
        }

        .badge {
            font-size: 12px;
            color: #848e9c;
            font-weight: 400;
            margin-left: 8px;
        }

        .pos {
            font-size: 13px;
            color: #848e9c;
            margin-bottom: 12px;
        }

        .pos b { color: #eaecef; }
        .pos .long { color: #0ecb81; }
        .pos .short { color: #f6465d; }

        .row {
            display: flex;
            flex-wrap: wrap;
            gap: 8px;
            margin-bottom: 10px;
            align-items: center;
        }

        .row-label {
            width: 100%;
            font-size: 12px;
            color: #848e9c;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }

        button {
            padding: 9px 12px;
            border-radius: 8px;
            border: 1px solid #2b3139;
            background: #1e2329;
            color: #eaecef;
            cursor: pointer;
            font-size: 13px;
        }

        button:hover { background: #2b3139; }

        button.on {
            background: #0ecb81;
            border-color: #0ecb81;
            color: #0b0e11;
            font-weight: 600;
        }

        button.long { border-color: #0ecb81; }
        button.short { border-color: #f6465d; }
        button.danger { border-color: #f6465d; color: #f6465d; }

        input[type=text] {
            padding: 9px 10px;
            border-radius: 8px;
            border: 1px solid #2b3139;
            background: #0b0e11;
            color: #eaecef;
            width: 140px;
            font-size: 13px;
        }

        #log {
            font-family: monospace;
            font-size: 12px;
            color: #848e9c;
            white-space: pre-wrap;
        }
    </style>
</head>
<body>
<div class="container">
    <h1>Futures Control Panel</h1>
    <div class="meta">Base order size <span id="round">-</span> | auto-management every 1.5s</div>

    <div id="panels"></div>

    <div class="panel" style="border-left-color:#2b3139">
        <h2>Log</h2>
        <div id="log"></div>
    </div>
</div>

<script>
const COINS = [
    {coin: 'BTC', symbol: 'BTCUSDT', cls: 'btc'},
    {coin: 'ETH', symbol: 'ETHUSDT', cls: 'eth'}
];
const TF1 = ['ATR', 'CE', 'EMA13', 'EMA26', 'SwingHigh', 'SwingLow'];
const TF3 = ['ATR', 'CE', 'EMA26'];

let state = {positions: {}, round_size_usdt: 0, exits: {}, limit_prices: {}};

function logLine(msg) {
    const el = document.getElementById('log');
    el.textContent = new Date().toLocaleTimeString() + '  ' + msg + '\n' + el.textContent;
}

async function api(path, body) {
    const res = await fetch(path, {
        method: 'POST',
        headers: {'Content-Type': 'application/json'},
        body: JSON.stringify(body)
    });
    const text = await res.text();
    if (!res.ok) {
        logLine('ERROR ' + path + ': ' + text.trim());
        throw new Error(text);
    }
    return text ? JSON.parse(text) : {};
}

function toggleBtn(c, window, cond) {
    const exits = state.exits[c.coin] || {};
    const on = exits[window] && exits[window][cond];
    return '<button class="' + (on ? 'on' : '') + '" ' +
        'onclick="doToggle(\'' + c.coin + '\',\'' + window + '\',\'' + cond + '\')">' +
        cond + '</button>';
}

function render() {
    document.getElementById('round').textContent =
        state.round_size_usdt > 0 ? state.round_size_usdt.toFixed(2) + ' USDT' : 'not set (first open fixes it)';

    const html = COINS.map(c => {
        const p = state.positions[c.coin];
        const posLine = p
            ? 'Position: <b class="' + p.side.toLowerCase() + '">' + p.side + '</b>' +
              ' | entry <b>' + p.entry_price.toFixed(2) + '</b>' +
              ' | adds <b>' + p.adds + '</b>' +
              ' | next add <b>' + p.next_add_price.toFixed(2) + '</b>'
            : 'Position: <b>flat</b>';

        return '<div class="panel ' + c.cls + '">' +
            '<h2>' + c.coin + ' Panel<span class="badge">' + c.symbol + '</span></h2>' +
            '<div class="pos">' + posLine + '</div>' +
            '<div class="row">' +
                '<button class="long" onclick="doOpen(\'' + c.coin + '\',\'LONG\')">Buy / Long</button>' +
                '<button class="short" onclick="doOpen(\'' + c.coin + '\',\'SHORT\')">Sell / Short</button>' +
            '</div>' +
            '<div class="row"><span class="row-label">Exit conditions TF1 (1m)</span>' +
                TF1.map(cond => toggleBtn(c, 'TF1', cond)).join('') +
            '</div>' +
            '<div class="row"><span class="row-label">Exit conditions TF3 (3m)</span>' +
                TF3.map(cond => toggleBtn(c, 'TF3', cond)).join('') +
            '</div>' +
            '<div class="row"><span class="row-label">Close</span>' +
                '<button class="danger" onclick="doCloseMarket(\'' + c.coin + '\')">Stop Market now</button>' +
                '<input type="text" id="px-' + c.coin + '" placeholder="limit price" value="' +
                    (state.limit_prices[c.coin] || '') + '">' +
                '<button class="danger" onclick="doCloseLimit(\'' + c.coin + '\')">Stop Limit</button>' +
            '</div>' +
        '</div>';
    }).join('');

    document.getElementById('panels').innerHTML = html;
}

async function doOpen(coin, side) {
    try {
        const r = await api('/api/open', {coin: coin, side: side});
        logLine('Opened ' + side + ' ' + coin + ' @ ' + r.price + ' (qty ' + r.qty + ')');
        refresh();
    } catch (e) {}
}

async function doCloseMarket(coin) {
    try {
        await api('/api/close-market', {coin: coin});
        logLine('Market close sent for ' + coin);
        refresh();
    } catch (e) {}
}

async function doCloseLimit(coin) {
    const raw = document.getElementById('px-' + coin).value.trim();
    const price = parseFloat(raw);
    try {
        await api('/api/close-limit', {coin: coin, price: isNaN(price) ? 0 : price, raw: raw});
        logLine('Limit close resting for ' + coin + ' @ ' + raw);
        refresh();
    } catch (e) {}
}

async function doToggle(coin, window, cond) {
    try {
        const r = await api('/api/toggle', {coin: coin, window: window, condition: cond});
        logLine(coin + ' ' + window + ' ' + cond + ' -> ' + (r.enabled ? 'ON' : 'OFF'));
        refresh();
    } catch (e) {}
}

async function refresh() {
    try {
        const res = await fetch('/api/state');
        state = await res.json();
        render();
    } catch (e) {}
}

refresh();
setInterval(refresh, 3000);
</script>
</body>
</html>`
