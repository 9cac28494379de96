/*
Package events distributes workflow progress to in-process subscribers.

The workflow driver publishes one event when a step starts, succeeds or
fails and one when the workflow ends. The CLI subscribes to print progress
lines.

Publish never blocks on slow subscribers: an event is dropped for a
subscriber whose buffer is full. Stop delivers what was already published,
closes every subscriber channel and returns once the distribution loop has
exited, so a consumer ranging over its channel sees every event:

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Workflow, ev.Step, ev.Type)
		}
	}()
	...
	broker.Stop()
*/
package events
