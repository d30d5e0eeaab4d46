// Package mvcc holds the versioned-value codec shared by the storage engine
// and the gossip subsystem. A versioned value is a (transaction id, value)
// pair; batches of them are serialized with a fast path for the common case
// where every value is committed and non-null. The byte layout is part of
// the cluster's rolling-upgrade contract and must stay bit-exact across
// releases within a wire major line.
package mvcc
