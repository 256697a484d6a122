// Package common holds protocol-wide constants shared by the codec,
// session, and driver packages.
package common

import "time"

const MaxPayloadBytes = 1440  // largest payload a single packet may carry
const HeaderSizeBytes = 32    // fixed wire-header size, before data
const MaxWindow = 65535       // ceiling every window field saturates at
const DefaultLocalWindow = MaxWindow

const DefaultRTO = 800 * time.Millisecond          // retransmission timeout, absent --rto
const DefaultRecvTimeout = 1500 * time.Millisecond // bounds the wait for the SETUP response
const DriverTick = 100 * time.Millisecond          // fixed poll interval of the receive phase, independent of RTO

const UDPRecvBufferBytes = 2048     // size of the buffer used to read one inbound datagram
const MinDatagramBytes = HeaderSizeBytes // anything shorter is malformed

const DefaultHost = "slow.gmelodie.com" // reference central server, absent --host
const DefaultPort = 7033                // reference central server port, absent --port

const DefaultPayload = "Hello\n" // used when neither --msg nor --revive is given
