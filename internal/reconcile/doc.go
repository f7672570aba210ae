// Package reconcile rebuilds device registry rows from tag lines held in
// the content store.
//
// A tag line is a content entry whose text begins with "sys=". Its first
// line is a whitespace-separated list of key=value tokens:
//
//	sys=feather-a id=cp-001 ip=192.168.0.10 category=cp
//
// The content store is the durable, replayable source; the registry is a
// derived index over it. Refresh replays every tag line in hash order and
// upserts the device each one names, all in one transaction.
package reconcile
