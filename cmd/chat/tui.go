package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-tavern/chatclient/internal/events"
	"github.com/zhouzirui/z-tavern/chatclient/internal/session"
	"github.com/zhouzirui/z-tavern/chatclient/internal/tui"
)

// runTUI runs the event router and the bubbletea program side by side until
// the user quits or ctx is cancelled.
func runTUI(ctx context.Context, a *app) error {
	router, err := events.NewEventRouter(events.WithVerbose())
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	ctrl := a.controller(session.WithObserver(router.Observer()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(ctx, ctrl), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	router.AddHandler("tui-forwarder", events.TopicSession, tui.Forwarder(p))

	eg, groupCtx := errgroup.WithContext(ctx)

	eg.Go(func() error { return router.Run(groupCtx) })

	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return errors.Wrap(err, "run tui")
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	log.Debug().Msg("tui finished")
	return nil
}
