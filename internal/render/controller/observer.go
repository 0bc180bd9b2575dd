package controller

import "github.com/cuongbtq/render-studio/internal/render/domain"

// Observer receives every state change of the job owned by a Controller.
//
// OnTransition is called synchronously, in order, while the controller holds
// its lock. Implementations must return quickly and must not call back into
// the Controller; hand work off to a goroutine instead.
type Observer interface {
	OnTransition(job domain.Job)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(job domain.Job)

// OnTransition calls f(job)
func (f ObserverFunc) OnTransition(job domain.Job) {
	f(job)
}

// MultiObserver fans a transition out to several observers in order
type MultiObserver []Observer

// OnTransition forwards the job to every observer
func (m MultiObserver) OnTransition(job domain.Job) {
	for _, o := range m {
		if o != nil {
			o.OnTransition(job)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnTransition(domain.Job) {}
