package flow

import (
	"github.com/holiman/uint256"

	"github.com/xraph/streampass/pass"
)

// Kind names a lifecycle transition.
type Kind string

const (
	KindCreated    Kind = "created"
	KindUpdated    Kind = "updated"
	KindTerminated Kind = "terminated"
)

// Event is one of Created, Updated or Terminated.
type Event interface {
	Kind() Kind
	Subscriber() pass.Address
	event()
}

// Created is delivered after a new flow is opened.
type Created struct {
	Sender   pass.Address
	FlowRate *uint256.Int
}

// Updated is delivered after an existing flow changes rate.
type Updated struct {
	Sender           pass.Address
	PreviousFlowRate *uint256.Int
	FlowRate         *uint256.Int
}

// Terminated is delivered after a flow is deleted.
type Terminated struct {
	Sender       pass.Address
	LastFlowRate *uint256.Int
}

func (Created) Kind() Kind    { return KindCreated }
func (Updated) Kind() Kind    { return KindUpdated }
func (Terminated) Kind() Kind { return KindTerminated }

func (e Created) Subscriber() pass.Address    { return e.Sender }
func (e Updated) Subscriber() pass.Address    { return e.Sender }
func (e Terminated) Subscriber() pass.Address { return e.Sender }

func (Created) event()    {}
func (Updated) event()    {}
func (Terminated) event() {}
