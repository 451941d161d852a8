package utils

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"
)

// SafeInterrupt calls onInterrupt on SIGINT or SIGTERM. If the program is still
// running after gracePeriod, it exits.
func SafeInterrupt(onInterrupt func(), gracePeriod time.Duration) {
	var sigChan = make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		var s = <-sigChan
		klog.Errorf("Got interrupted (signal %q), saving and shutting down... (%s)", s, gracePeriod)
		if onInterrupt != nil {
			go onInterrupt()
		}
		time.Sleep(gracePeriod)
		klog.Fatalf("Graceful shutdown period %s expired, exiting.", gracePeriod)
	}()
}
