// Package schema defines the data structures shared by the taskfeed server
// and its clients.
//
// # Change events
//
// A ChangeEvent is a terse marker naming the kind of mutation and the
// affected entity, never its content:
//
//	{"id": 42, "type": "TASK_UPDATED", "entityId": 7, "projectId": 3, "createdAt": 1760000000000}
//
// The id is assigned by the change log and is the only ordering key.
// CreatedAt is informational.
//
// EventType is a closed set. Unknown tags are rejected when decoding so a
// client never silently ignores a mutation it does not understand:
//
//	var ev schema.ChangeEvent
//	if err := json.Unmarshal(data, &ev); errors.Is(err, schema.ErrUnknownEventType) {
//	    // log and skip
//	}
//
// # Entities
//
// Project, Task and Member mirror the rows owned by the persistence layer.
// Project and Task carry a Version that increases with every successful
// update; readers use it to discard stale copies that arrive out of order.
package schema
