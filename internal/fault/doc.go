// Package fault centralises how envsensor reacts to failures.
//
// Every failure the publish loop can observe is mapped to one of the
// sentinel errors in this package and then classified:
//
//	Condition                          Class                Action
//	single sensor read fault           recoverable, local   mark absent, continue
//	validity gate fails                recoverable, local   skip publish, no sleep
//	publish error (broker/transport)   recoverable, remote  log, skip sleep
//	connection interrupted             transport-managed    none (transport reconnects)
//	resubscription rejected            fatal                terminate, non-zero exit
//
// Only ErrResubscriptionRejected is fatal. Everything else stays inside the
// loop iteration in which it happened.
package fault
