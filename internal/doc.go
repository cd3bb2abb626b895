// Package internal contains the core implementation packages for charoster.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - waiter, workqueue: load deduplication futures and single-consumer queues
//   - merge: deep merge and copy over decoded JSON values
//   - types, interfaces: shared value types and collaborator contracts
//   - errors, logging, config: the error taxonomy, structured logging, settings
//   - loader: reads pack files through an afero filesystem
//   - definitions: the definition registry, discovery triggers and field values
//   - entities: per-type entity buckets and addon composition
//   - imagecache: derived alt images keyed by theme, size and id
//   - tempstore: locked temp folder holding derived image files
//   - packs: pack discovery from <work>/packs/<packId>/info.json
//   - notify: in-process notification hub
//   - app: the process context owning every component
//   - watcher, websocket, server: reload on change and the HTTP surface
//
// # Inter-Package Communication
//
//   - Discovery registers definitions, then queues entities and fires triggers
//   - The entity manager asks the registry which fields are arrayable
//   - The image cache asks the entity manager for alt image records
//   - Every component notifies the hub; the server streams it to /ws
//   - The watcher reloads the app, which resets every component together
package internal
