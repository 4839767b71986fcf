// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rish9101/LibAFL/pkg/broker"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/stat"
)

func serveHTTP(ctx context.Context, addr string, set *stat.Set, hub *broker.Hub) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httpSummary(w, set, hub)
	})
	mux.HandleFunc("/graphs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(set.RenderGraphs()); err != nil {
			log.Logf(0, "failed to encode graphs: %v", err)
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(set.Registry(), promhttp.HandlerOpts{}))
	// Browsers like to request this, without special handler this goes to / handler.
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %v: %w", addr, err)
	}
	log.Logf(0, "serving http on http://%v", ln.Addr())
	server := &http.Server{Handler: handlers.CompressHandler(mux)}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func httpSummary(w http.ResponseWriter, set *stat.Set, hub *broker.Hub) {
	data := &UISummaryData{
		Stats: set.Collect(stat.All),
		Log:   log.CachedLogOutput(),
	}
	for _, c := range hub.Clients() {
		data.Workers = append(data.Workers, UIWorker{
			ClientStats: c,
			Idle:        time.Since(c.LastSeen).Truncate(time.Second),
		})
	}
	if err := summaryTemplate.Execute(w, data); err != nil {
		log.Logf(0, "failed to execute template: %v", err)
		http.Error(w, fmt.Sprintf("failed to execute template: %v", err), http.StatusInternalServerError)
	}
}

type UISummaryData struct {
	Stats   []stat.Metric
	Workers []UIWorker
	Log     string
}

type UIWorker struct {
	broker.ClientStats
	Idle time.Duration
}

var summaryTemplate = template.Must(template.New("").Parse(`
<!doctype html>
<html>
<head>
	<title>afl-fuzz</title>
</head>
<body>
<table>
	<caption>Stats</caption>
	{{range $s := $.Stats}}
	<tr>
		<td title="{{$s.Desc}}">{{$s.Name}}</td>
		<td>{{$s.Value}}</td>
	</tr>
	{{end}}
</table>
<br>
<table>
	<caption>Workers</caption>
	<tr>
		<th>ID</th>
		<th>Name</th>
		<th>Execs</th>
		<th>Crashes</th>
		<th>Queue</th>
		<th>Last seen</th>
	</tr>
	{{range $w := $.Workers}}
	<tr>
		<td>{{$w.ID}}</td>
		<td>{{$w.Name}}</td>
		<td>{{$w.Execs}}</td>
		<td>{{$w.Crashes}}</td>
		<td>{{$w.QueueEntries}}</td>
		<td>{{$w.Idle}} ago</td>
	</tr>
	{{end}}
</table>
<br>
<textarea rows="30" cols="120" readonly>{{.Log}}</textarea>
</body>
</html>
`))
