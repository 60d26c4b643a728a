package web

// indexPage is the whole front end: it connects to /events and keeps
// the live table and the finalized stack in sync. Kept as one string
// so the binary stays self-contained.
const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>keytrace</title>
<style>
  body { font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
         margin: 1.5rem; background: #111; color: #ddd; }
  h1 { font-size: 1.2rem; } h1 .mode { color: #e6b450; font-size: .8em; }
  table { border-collapse: collapse; margin: .5rem 0 1rem; }
  th, td { border: 1px solid #444; padding: 2px 8px; white-space: pre; }
  th { background: #222; text-align: left; }
  tr:nth-child(even) td { background: #181818; }
  details { margin: .75rem 0; border: 1px solid #333; padding: .25rem .75rem; }
  summary { cursor: pointer; color: #9cf; }
  button { font: inherit; background: #234; color: #ddd; border: 1px solid #456;
           padding: 1px 8px; cursor: pointer; }
  button.copied { background: #253; }
  .empty { color: #666; }
</style>
</head>
<body>
<h1>keytrace <span id="mode" class="mode"></span></h1>
<div id="live"><p class="empty">waiting for events&hellip;</p></div>
<h2 style="font-size:1rem">Finalized tables</h2>
<div id="done"></div>
<script>
"use strict";
const markdowns = {};

function renderTable(headers, rows) {
  const tbl = document.createElement("table");
  const tr = tbl.createTHead().insertRow();
  for (const h of headers) {
    const th = document.createElement("th");
    th.textContent = h;
    tr.appendChild(th);
  }
  const body = tbl.createTBody();
  for (const row of rows) {
    const r = body.insertRow();
    for (const cell of row) r.insertCell().textContent = cell;
  }
  return tbl;
}

function liveBox(source) {
  let box = document.getElementById("live-" + source);
  if (!box) {
    box = document.createElement("div");
    box.id = "live-" + source;
    const holder = document.getElementById("live");
    holder.querySelector(".empty")?.remove();
    holder.appendChild(box);
  }
  return box;
}

function showLive(ev, headers) {
  const box = liveBox(ev.source);
  box.replaceChildren();
  if (!ev.rows || !ev.rows.length) return;
  const label = document.createElement("div");
  label.textContent = ev.source + " (recording)";
  label.className = "empty";
  box.append(label, renderTable(headers, ev.rows));
}

function addFinalized(t, headers) {
  markdowns[t.id] = t.markdown;
  const details = document.createElement("details");
  details.open = true;
  const summary = document.createElement("summary");
  const ended = t.ended ? new Date(t.ended).toLocaleTimeString() : "";
  summary.textContent = t.source + " | " + t.row_count + " rows | " + ended + " ";
  const btn = document.createElement("button");
  btn.textContent = "copy markdown";
  btn.onclick = e => {
    e.preventDefault();
    navigator.clipboard.writeText(markdowns[t.id]).then(() => {
      btn.classList.add("copied");
      setTimeout(() => btn.classList.remove("copied"), 800);
    });
  };
  summary.appendChild(btn);
  details.append(summary, renderTable(t.headers || headers, t.rows));
  document.getElementById("done").prepend(details);
}

let headers = [];
const es = new EventSource("/events");
es.onmessage = m => {
  const ev = JSON.parse(m.data);
  if (ev.headers) headers = ev.headers;
  switch (ev.type) {
  case "snapshot":
    document.getElementById("done").replaceChildren();
    setMode(ev.manual);
    // Newest first in the feed; prepend restores order.
    for (const t of (ev.tables || []).reverse()) {
      if (t.live) showLive({source: t.source, rows: t.rows}, headers);
      else addFinalized(t, headers);
    }
    break;
  case "live":
    showLive(ev, headers);
    break;
  case "finalized":
    addFinalized(ev.table, headers);
    break;
  case "mode":
    setMode(ev.manual);
    break;
  }
};

function setMode(manual) {
  document.getElementById("mode").textContent = manual ? "- Manual Mode" : "";
}
</script>
</body>
</html>
`
