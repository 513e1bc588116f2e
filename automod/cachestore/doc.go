// Automod component for caching short string values with a fixed TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The engine caches resolved invite codes here (so repeated links to the same server don't hit the platform API), and marks messages which have already been actioned, so a redelivered event is not punished twice.
package cachestore
