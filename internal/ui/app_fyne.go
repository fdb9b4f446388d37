//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"runtime"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"formcanvas/internal/background"
	placement "formcanvas/internal/canvas"
	"formcanvas/internal/config"
	"formcanvas/internal/crash"
	"formcanvas/internal/domain"
	"formcanvas/internal/export"
	applog "formcanvas/internal/log"
	"formcanvas/internal/preview"
	"formcanvas/internal/version"
	"formcanvas/internal/workspace"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Run starts the desktop shell on the layout stored under dataDir.
// An empty dataDir uses the configured storage directory.
func Run(dataDir string) error {
	cfg, cerr := config.Load()
	applog.Init(workspace.LogOptions(cfg.Logging))
	l := applog.WithComponent("ui")
	if cerr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cerr))
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}
	l.Info("starting UI")

	target := &crash.Target{Dir: dataDir}
	defer crash.Recover(target)

	ctx := context.Background()
	env, err := workspace.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()
	env.Arm(target)
	cv := env.Canvas
	loader := background.NewLoader(background.DefaultMaxBytes)
	defer loader.Close()

	fyneApp := app.NewWithID("formcanvas")
	w := fyneApp.NewWindow("Form Canvas")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 900)
	w.Resize(fyne.NewSize(float32(max(winW, 800)), float32(max(winH, 600))))

	status := widget.NewLabel("Ready")
	page := NewPageCanvas()
	pageRect := &domain.Rect{Width: domain.PageWidth, Height: domain.PageHeight}

	// Pool list (left). Selecting a field arms it; the next tap on the page places it.
	var pool []domain.Field
	poolList := widget.NewList(
		func() int { return len(pool) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i >= 0 && int(i) < len(pool) {
				o.(*widget.Label).SetText(pool[i].Label)
			}
		},
	)
	poolList.OnSelected = func(id widget.ListItemID) {
		if id < 0 || int(id) >= len(pool) {
			return
		}
		page.Arm(pool[id])
		status.SetText(fmt.Sprintf("Tap the page to place %q", pool[id].Label))
	}

	var (
		bgKey string
		bgImg image.Image
	)
	refresh := func(st placement.State) {
		pool = st.Pool
		poolList.UnselectAll()
		poolList.Refresh()
		if st.Background != bgKey {
			bgKey, bgImg = st.Background, nil
			if bgKey != "" {
				img, _, derr := background.Decode(bgKey)
				if derr != nil {
					l.Warn("background decode failed", slog.Any("err", derr))
				} else {
					bgImg = img
				}
			}
		}
		page.SetState(st.Items, bgImg)
	}
	unsubscribe := cv.Subscribe(func(r placement.Result) {
		st := r.State
		fyne.Do(func() { refresh(st) })
	})
	defer unsubscribe()
	refresh(cv.State())
	if env.Found {
		status.SetText("Restored saved layout")
	}

	showErr := func(op string, err error) {
		l.Error(op+" failed", slog.Any("err", err))
		dialog.ShowError(err, w)
	}

	page.OnDrop = func(f domain.Field, p domain.Point) {
		res, err := cv.Drop(f, p, pageRect)
		if err != nil {
			showErr("drop", err)
			return
		}
		if res.Outcome == placement.Rejected {
			status.SetText("Dropped outside the page")
			return
		}
		status.SetText(fmt.Sprintf("Placed %q", f.Label))
	}
	page.OnMove = func(id string, p domain.Point) {
		res, err := cv.Move(id, p, pageRect)
		if err != nil {
			showErr("move", err)
			return
		}
		if res.Outcome == placement.Evicted {
			status.SetText(fmt.Sprintf("%q moved off the page and returned to the list", res.Item.Label))
		}
	}
	page.OnResize = func(id string, s domain.Size, p domain.Point) {
		if _, err := cv.Resize(id, s, p); err != nil {
			showErr("resize", err)
		}
	}
	page.OnRemove = func(id string) {
		if _, err := cv.Remove(id); err != nil {
			showErr("remove", err)
		}
	}
	page.OnEdit = func(it domain.PlacedItem) {
		entry := widget.NewEntry()
		entry.SetText(it.Value)
		entry.SetPlaceHolder(it.Label)
		dialog.ShowForm("Edit "+it.Label, "Set", "Cancel", []*widget.FormItem{
			widget.NewFormItem(it.Label, entry),
		}, func(ok bool) {
			if !ok {
				return
			}
			if _, err := cv.EditValue(it.ID, entry.Text); err != nil {
				showErr("edit value", err)
			}
		}, w)
	}

	openBackground := func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil {
				showErr("open background", err)
				return
			}
			if rc == nil {
				return
			}
			name := rc.URI().Name()
			status.SetText("Loading " + name + "…")
			loader.Load(rc, func(dataURL string, lerr error) {
				if lerr != nil {
					fyne.Do(func() { showErr("load background", lerr) })
					return
				}
				cv.SetBackground(dataURL)
				fyne.Do(func() { status.SetText("Background set from " + name) })
			})
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter(imageExtensions))
		fd.Show()
	}
	save := func() {
		if _, err := cv.Save(ctx); err != nil {
			showErr("save", err)
			return
		}
		status.SetText("Layout saved")
	}
	clearAll := func() {
		dialog.ShowConfirm("Clear", "Remove every field and the saved layout?", func(ok bool) {
			if !ok {
				return
			}
			if _, err := cv.Clear(ctx); err != nil {
				showErr("clear", err)
				return
			}
			status.SetText("Cleared")
		}, w)
	}
	exportTo := func(format string) {
		sd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
			if err != nil {
				showErr("export", err)
				return
			}
			if uc == nil {
				return
			}
			defer func() { _ = uc.Close() }()
			snap := cv.State().Snapshot()
			opt := export.Options{Title: "form", Font: export.GoRegular()}
			if format == "png" {
				err = export.PNG(uc, snap, opt)
			} else {
				err = export.PDF(uc, snap, opt)
			}
			if err != nil {
				showErr("export", err)
				return
			}
			status.SetText("Exported to " + uc.URI().Path())
		}, w)
		sd.SetFileName("form." + format)
		sd.SetFilter(fstorage.NewExtensionFileFilter([]string{"." + format}))
		sd.Show()
	}
	showPreview := func() {
		sess := preview.Open(ctx, env.Store)
		if !sess.Found {
			dialog.ShowInformation("Preview", "Nothing saved yet. Save the layout first.", w)
			return
		}
		openPreviewWindow(fyneApp, sess, l)
	}

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.FolderOpenIcon(), openBackground),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), save),
		widget.NewToolbarAction(theme.DeleteIcon(), clearAll),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.VisibilityIcon(), showPreview),
		widget.NewToolbarAction(theme.DocumentPrintIcon(), func() { exportTo("pdf") }),
	)

	left := container.NewBorder(container.NewVBox(widget.NewLabel("Fields"), widget.NewSeparator()), nil, nil, nil, poolList)
	split := container.NewHSplit(left, page)
	split.SetOffset(0.2)
	w.SetContent(container.NewBorder(toolbar, status, nil, nil, split))

	saveItem := fyne.NewMenuItem("Save", save)
	saveItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierShortcutDefault}
	w.Canvas().AddShortcut(saveItem.Shortcut, func(fyne.Shortcut) { save() })
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Background…", openBackground),
		fyne.NewMenuItem("Clear Background", func() { cv.ClearBackground() }),
		fyne.NewMenuItemSeparator(),
		saveItem,
		fyne.NewMenuItem("Clear…", clearAll),
	)
	exportMenu := fyne.NewMenu("Export",
		fyne.NewMenuItem("Export as PDF…", func() { exportTo("pdf") }),
		fyne.NewMenuItem("Export as PNG…", func() { exportTo("png") }),
	)
	page.Snapping = prefs.BoolWithFallback("view.snapping", true)
	var snapItem *fyne.MenuItem
	var viewMenu *fyne.Menu
	snapItem = fyne.NewMenuItem("Snap to Guides", func() {
		page.Snapping = !page.Snapping
		snapItem.Checked = page.Snapping
		prefs.SetBool("view.snapping", page.Snapping)
		viewMenu.Refresh()
	})
	snapItem.Checked = page.Snapping
	viewMenu = fyne.NewMenu("View",
		fyne.NewMenuItem("Preview", showPreview),
		fyne.NewMenuItem("Reset Zoom", page.ResetView),
		snapItem,
	)
	aboutMenu := fyne.NewMenu("About", fyne.NewMenuItem("About Form Canvas", func() {
		exe, _ := os.Executable()
		info := fmt.Sprintf("Form Canvas\nVersion: %s\nOS: %s\nArch: %s\nGo: %s\nExecutable: %s\nStorage: %s",
			version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version(), exe, cfg.Storage.Backend)
		dialog.ShowInformation("About", info, w)
	}))
	w.SetMainMenu(fyne.NewMainMenu(fileMenu, exportMenu, viewMenu, aboutMenu))

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		w.Close()
	})

	w.ShowAndRun()
	return nil
}

// openPreviewWindow shows the saved layout as editable entries. Edits stay in the session.
func openPreviewWindow(a fyne.App, sess *preview.Session, l *slog.Logger) {
	pw := a.NewWindow("Form Preview")
	log := l.With(slog.String("session", sess.ID))

	pageBox := canvas.NewRectangle(color.White)
	pageBox.SetMinSize(fyne.NewSize(domain.PageWidth, domain.PageHeight))
	layers := []fyne.CanvasObject{pageBox}
	if bg := sess.Background(); bg != "" {
		if img, _, err := background.Decode(bg); err == nil {
			ci := canvas.NewImageFromImage(img)
			ci.FillMode = canvas.ImageFillStretch
			layers = append(layers, ci)
		} else {
			log.Warn("preview background decode failed", slog.Any("err", err))
		}
	}
	var entries []fyne.CanvasObject
	for _, it := range sess.Items() {
		id := it.ID
		e := widget.NewEntry()
		e.SetPlaceHolder(it.Label)
		e.SetText(it.Value)
		e.OnChanged = func(s string) {
			if _, err := sess.EditValue(id, s); err != nil {
				log.Warn("preview edit failed", slog.String("id", id), slog.Any("err", err))
			}
		}
		e.Move(fyne.NewPos(float32(it.X), float32(it.Y)))
		e.Resize(fyne.NewSize(float32(it.Width), float32(it.Height)))
		entries = append(entries, e)
	}
	layers = append(layers, container.NewWithoutLayout(entries...))

	exportPDF := func() {
		sd := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
			if err != nil || uc == nil {
				return
			}
			defer func() { _ = uc.Close() }()
			if err := export.PDF(uc, sess.Snapshot(), export.Options{Title: "form-" + sess.ID[:8]}); err != nil {
				dialog.ShowError(err, pw)
			}
		}, pw)
		sd.SetFileName("form-" + sess.ID[:8] + ".pdf")
		sd.Show()
	}
	toolbar := widget.NewToolbar(widget.NewToolbarAction(theme.DocumentPrintIcon(), exportPDF))
	pw.SetContent(container.NewBorder(toolbar, nil, nil, nil,
		container.NewScroll(container.NewCenter(container.NewStack(layers...)))))
	pw.Resize(fyne.NewSize(900, 900))
	log.Info("preview opened", slog.Int("items", len(sess.Items())))
	pw.Show()
}
