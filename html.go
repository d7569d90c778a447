/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"html/template"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assets embed.FS

var pages = template.Must(template.ParseFS(assets, "assets/*.html"))

// pageData is handed to every page template.
type pageData struct {
	Prefix       string
	Favicon      template.HTML
	SessionName  string
	GuestAddress string
	AdminAddress string
	GuestURL     string
}

func renderPage(a *app, w http.ResponseWriter, name string, data pageData) {
	data.Prefix = a.cfg.prefix
	data.Favicon = template.HTML(getFavicon(a.cfg))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(a.cfg, w)

	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		a.errs <- err
	}
}

func serveHomePage(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		renderPage(a, w, "home.html", pageData{})
	}
}

func serveHealthCheck(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(a.cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			a.errs <- err

			return
		}
	}
}

func serveAssets(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := p.ByName("file")

		ext := strings.ToLower(path.Ext(fname))
		if ext == ".html" {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Page not found.")

			return
		}

		data, err := assets.ReadFile("assets/" + fname)
		if err != nil {
			serveErrorPage(a.cfg, w, http.StatusNotFound, "Page not found.")

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(a.cfg, w)

		switch ext {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			a.errs <- err

			return
		}
	}
}

func serveRobots(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /admin/
Disallow: /guest/`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(a.cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			a.errs <- err

			return
		}
	}
}
