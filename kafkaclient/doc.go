// Package kafkaclient provides the per-user Kafka consumer factory.
//
// Every consumer this package opens authenticates with the requesting user's
// own SCRAM-SHA-512 credentials rather than a shared service account, so the
// broker's ACLs decide what each user may read. The factory also verifies
// credentials at login time by dialing the broker with them.
package kafkaclient
