package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Fridge Inventory Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #111; color: #eee; margin: 0; }
        .app { max-width: 1200px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 12px; }
        .badge { padding: 2px 8px; border-radius: 4px; background: #333; font-size: 12px; }
        table { width: 100%; border-collapse: collapse; }
        td, th { padding: 4px 6px; border-bottom: 1px solid #333; text-align: left; }
        .added { color: #4caf50; }
        .removed { color: #f44336; }
        .skipped { color: #999; }
        img { width: 100%; height: auto; background: #000; }
        button { margin-right: 6px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h1>Fridge Inventory Monitor</h1>
            <span class="badge" id="status-badge">Waiting for data...</span>
        </div>
        <div class="grid">
            <div class="panel">
                <h2>Live Feed</h2>
                <img id="stream" src="/stream" alt="Annotated camera feed">
                <p>
                    FPS: <span id="fps">--</span>,
                    frames: <span id="frames">--</span>,
                    skipped: <span id="skipped">--</span>,
                    line y: <span id="line">--</span>
                </p>
            </div>
            <div class="panel">
                <h2>Inventory</h2>
                <table>
                    <thead><tr><th>Item</th><th>Quantity</th></tr></thead>
                    <tbody id="inventory"></tbody>
                </table>
                <h2>Recent Crossings</h2>
                <table>
                    <thead><tr><th>Frame</th><th>Item</th><th>Direction</th><th>Count</th><th>Qty</th></tr></thead>
                    <tbody id="events"></tbody>
                </table>
                <h2>Journal</h2>
                <button id="journal-start">Start</button>
                <button id="journal-stop">Stop</button>
                <span id="journal-status">--</span>
            </div>
        </div>
    </div>
    <script>
        const maxEvents = 20;

        function cell(text, cls) {
            const td = document.createElement('td');
            td.textContent = text;
            if (cls) td.className = cls;
            return td;
        }

        async function refreshInventory() {
            try {
                const res = await fetch('/api/inventory');
                const body = await res.json();
                const tbody = document.getElementById('inventory');
                tbody.replaceChildren();
                for (const item of body.items || []) {
                    const tr = document.createElement('tr');
                    tr.append(cell(item.name), cell(item.quantity));
                    tbody.append(tr);
                }
            } catch (e) {
                console.warn('inventory refresh failed', e);
            }
        }

        async function refreshJournal() {
            const res = await fetch('/api/journal/status');
            const st = await res.json();
            document.getElementById('journal-status').textContent =
                st.recording ? 'recording ' + st.filename + ' (' + st.event_count + ' events)' : 'idle';
        }

        function addEvent(ev) {
            const tbody = document.getElementById('events');
            const tr = document.createElement('tr');
            const cls = ev.skipped ? 'skipped' : ev.direction;
            tr.append(cell(ev.frame_number), cell(ev.label), cell(ev.direction, cls), cell(ev.count), cell(ev.quantity));
            tbody.prepend(tr);
            while (tbody.children.length > maxEvents) tbody.lastChild.remove();
        }

        const status = new EventSource('/api/status/stream');
        status.onmessage = (msg) => {
            const st = JSON.parse(msg.data);
            const m = st.monitor;
            document.getElementById('fps').textContent = m.current_fps.toFixed(1);
            document.getElementById('frames').textContent = m.frames_processed;
            document.getElementById('skipped').textContent = m.frames_skipped;
            document.getElementById('line').textContent = m.line.toFixed(0);
            document.getElementById('status-badge').textContent = 'Live';
        };
        status.onerror = () => {
            document.getElementById('status-badge').textContent = 'Disconnected';
        };

        const events = new EventSource('/api/events/stream');
        events.onmessage = (msg) => {
            addEvent(JSON.parse(msg.data));
            refreshInventory();
        };

        document.getElementById('journal-start').onclick = async () => {
            await fetch('/api/journal/start', { method: 'POST' });
            refreshJournal();
        };
        document.getElementById('journal-stop').onclick = async () => {
            await fetch('/api/journal/stop', { method: 'POST' });
            refreshJournal();
        };

        fetch('/api/events').then((r) => r.json()).then((body) => {
            for (const ev of (body.events || []).reverse()) addEvent(ev);
        });
        refreshInventory();
        refreshJournal();
        setInterval(refreshInventory, 10000);
    </script>
</body>
</html>
`
