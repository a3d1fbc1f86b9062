package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"zebra-print/internal/app"
	"zebra-print/internal/config"
	"zebra-print/internal/cpcl"
	"zebra-print/internal/logging"
	"zebra-print/internal/printer"
)

const (
	AppVersion = "1.0.0"
	AppName    = "Zebra Label Print"
)

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	core    *app.App
	logger  *zap.Logger
	ui      *uiQueue

	statusLabel *widget.Label
	connectBtn  *widget.Button
	printBtn    *widget.Button
	testBtn     *widget.Button

	// Part label fields
	nameEntry     *widget.Entry
	barcodeEntry  *widget.Entry
	numberEntry   *widget.Entry
	shortEntry    *widget.Entry
	locationEntry *widget.Entry
	minEntry      *widget.Entry
	maxEntry      *widget.Entry
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	core, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start printer link", zap.Error(err))
	}

	a := fyneapp.New()
	w := a.NewWindow(fmt.Sprintf("%s v%s", AppName, AppVersion))
	w.Resize(fyne.NewSize(420, 460))

	printApp := &App{
		fyneApp: a,
		window:  w,
		core:    core,
		logger:  logger,
		ui:      newUIQueue(16),
	}
	go printApp.ui.run()

	w.SetContent(printApp.buildUI())
	w.SetOnClosed(func() {
		printApp.cleanup()
	})

	// Connection changes arrive on the notifier's goroutine
	core.Link.OnStateChange(func(printer.ConnectionState) {
		printApp.ui.post(printApp.refreshStatus)
	})
	printApp.refreshStatus()

	w.ShowAndRun()
}

func (a *App) cleanup() {
	a.core.Link.OnStateChange(nil)
	a.ui.stop()
	if err := a.core.Close(); err != nil {
		a.logger.Warn("Shutdown failed", zap.Error(err))
	}
}

func (a *App) buildUI() fyne.CanvasObject {
	a.statusLabel = widget.NewLabel("Not Connected")

	a.connectBtn = widget.NewButton("Connect", func() {
		a.toggleConnection()
	})

	a.testBtn = widget.NewButton("Print Test Label", func() {
		a.printTestLabel()
	})

	a.printBtn = widget.NewButton("Print", func() {
		a.print()
	})
	a.printBtn.Importance = widget.HighImportance

	part := cpcl.DemoPart
	a.nameEntry = newEntry(part.Name)
	a.barcodeEntry = newEntry(part.Barcode)
	a.numberEntry = newEntry(part.Number)
	a.shortEntry = newEntry(part.ShortName)
	a.locationEntry = newEntry(part.Location)
	a.minEntry = newEntry(part.Min)
	a.maxEntry = newEntry(part.Max)

	form := widget.NewForm(
		widget.NewFormItem("Part Name", a.nameEntry),
		widget.NewFormItem("Barcode", a.barcodeEntry),
		widget.NewFormItem("Part Number", a.numberEntry),
		widget.NewFormItem("Short Name", a.shortEntry),
		widget.NewFormItem("Location", a.locationEntry),
		widget.NewFormItem("Min", a.minEntry),
		widget.NewFormItem("Max", a.maxEntry),
	)

	return container.NewBorder(
		container.NewHBox(widget.NewLabel("Printer:"), a.statusLabel),
		container.NewHBox(a.connectBtn, a.testBtn, a.printBtn),
		nil, nil,
		form,
	)
}

func newEntry(text string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	return e
}

func (a *App) refreshStatus() {
	if a.core.Link.IsConnected() {
		a.statusLabel.SetText("Connected")
		a.connectBtn.SetText("Disconnect")
	} else {
		a.statusLabel.SetText("Not Connected")
		a.connectBtn.SetText("Connect")
	}
}

func (a *App) toggleConnection() {
	if a.core.Link.IsConnected() {
		if err := a.core.Link.Close(); err != nil {
			dialog.ShowError(err, a.window)
		}
		a.refreshStatus()
		return
	}

	a.connectBtn.Disable()
	a.statusLabel.SetText("Scanning...")
	go func() {
		acc, err := a.core.Link.Connect(context.Background())
		a.ui.post(func() {
			a.connectDone(acc, err)
		})
	}()
}

func (a *App) connectDone(acc printer.Accessory, err error) {
	a.connectBtn.Enable()
	a.refreshStatus()
	if err != nil {
		if errors.Is(err, printer.ErrNoPrinterFound) {
			a.statusLabel.SetText("No printer found")
		}
		dialog.ShowError(err, a.window)
		return
	}
	a.statusLabel.SetText(fmt.Sprintf("Connected to %s", acc))
}

func (a *App) partLabel() cpcl.PartLabel {
	return cpcl.PartLabel{
		Name:      a.nameEntry.Text,
		Barcode:   a.barcodeEntry.Text,
		Number:    a.numberEntry.Text,
		ShortName: a.shortEntry.Text,
		Location:  a.locationEntry.Text,
		Min:       a.minEntry.Text,
		Max:       a.maxEntry.Text,
	}
}

func (a *App) print() {
	a.setPrinting(true)
	a.core.Service.PrintAsync(a.partLabel().Label(), a.postPrintDone)
}

func (a *App) printTestLabel() {
	a.setPrinting(true)
	go func() {
		a.postPrintDone(a.core.Service.PrintBarcode(context.Background(), "This is a test"))
	}()
}

func (a *App) postPrintDone(err error) {
	a.ui.post(func() { a.printDone(err) })
}

func (a *App) printDone(err error) {
	a.setPrinting(false)
	a.refreshStatus()
	if err != nil {
		dialog.ShowError(fmt.Errorf("print failed: %w", err), a.window)
	}
}

func (a *App) setPrinting(busy bool) {
	if busy {
		a.printBtn.Disable()
		a.testBtn.Disable()
		a.statusLabel.SetText("Printing...")
		return
	}
	a.printBtn.Enable()
	a.testBtn.Enable()
}
