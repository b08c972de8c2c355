package backend

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// dialBus runs a godbus connect function under ctx. godbus has no
// context-aware dial, so the dial runs in a goroutine and a late success
// after cancellation is closed instead of leaked.
func dialBus(ctx context.Context, dial func(...dbus.ConnOption) (*dbus.Conn, error)) (*dbus.Conn, error) {
	type result struct {
		conn *dbus.Conn
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		conn, err := dial()
		ch <- result{conn: conn, err: err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func dialSessionBus(ctx context.Context) (*dbus.Conn, error) {
	return dialBus(ctx, dbus.ConnectSessionBus)
}

func dialSystemBus(ctx context.Context) (*dbus.Conn, error) {
	return dialBus(ctx, dbus.ConnectSystemBus)
}

// getProperty fetches a single D-Bus property into dest.
func getProperty(obj dbus.BusObject, prop string, dest any) error {
	v, err := obj.GetProperty(prop)
	if err != nil {
		return err
	}
	return v.Store(dest)
}
