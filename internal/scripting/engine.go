package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/thorcore/telepathy/internal/wire"
)

// Engine wraps a single gopher-lua VM running user telemetry hooks.
// Scripts may define:
//
//	on_message(msg)  -- msg = {key, type, value, raw_len}
//	on_disconnect()
//
// on_message may return a string, which is logged as an alert.
type Engine struct {
	mu  sync.Mutex // session reader and main goroutine both call in
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every *.lua file in dir, in name
// order. A missing directory yields an engine with no hooks.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLogInfo))

	if err := e.loadDir(dir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

func (e *Engine) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HandleMessage calls on_message, if defined. Script errors are logged and
// never reach the caller.
func (e *Engine) HandleMessage(msg wire.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("on_message")
	if fn == lua.LNil {
		return
	}

	t := e.vm.NewTable()
	t.RawSetString("key", lua.LString(msg.Key))
	t.RawSetString("type", lua.LString(msg.Type().String()))
	t.RawSetString("value", luaValue(msg.Value))
	t.RawSetString("raw_len", lua.LNumber(len(msg.Raw)))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua on_message error", zap.String("key", msg.Key), zap.Error(err))
		return
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	if s, ok := result.(lua.LString); ok && s != "" {
		e.log.Warn("script alert", zap.String("key", msg.Key), zap.String("alert", string(s)))
	}
}

// HandleDisconnect calls on_disconnect, if defined.
func (e *Engine) HandleDisconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("on_disconnect")
	if fn == lua.LNil {
		return
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		e.log.Error("lua on_disconnect error", zap.Error(err))
	}
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

func (e *Engine) luaLogInfo(L *lua.LState) int {
	e.log.Info(L.CheckString(1), zap.String("source", "lua"))
	return 0
}

// luaValue converts numerics to numbers and everything else to its text.
func luaValue(v wire.Value) lua.LValue {
	if f, ok := v.Float64(); ok {
		return lua.LNumber(f)
	}
	return lua.LString(v.String())
}
